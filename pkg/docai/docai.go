// Package docai turns Google Document AI OCR results into positioned text
// runs and hOCR, and wraps the remote processing call.
//
// Process sends a PDF to a configured Document AI processor. The response
// proto can be saved and reloaded as JSON, so documents can be converted
// offline without re-processing. Source projects the response's normalized
// token boxes onto real page dimensions as text runs for editing.
package docai

import (
	"context"
	"fmt"
	"os"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// Config identifies the Document AI processor to call.
type Config struct {
	ProjectID   string `yaml:"project_id"`
	Location    string `yaml:"location"`
	ProcessorID string `yaml:"processor_id"`
}

// Process sends PDF bytes to Document AI and returns the raw response
// document. Credentials come from the GOOGLE_APPLICATION_CREDENTIALS
// environment variable.
func Process(ctx context.Context, pdf []byte, cfg Config) (*documentaipb.Document, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	client, err := documentai.NewDocumentProcessorClient(
		ctx,
		option.WithEndpoint(endpoint),
		option.WithCredentialsFile(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Document AI client: %w", err)
	}
	defer client.Close()

	req := &documentaipb.ProcessRequest{
		Name: fmt.Sprintf(
			"projects/%s/locations/%s/processors/%s",
			cfg.ProjectID, cfg.Location, cfg.ProcessorID,
		),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pdf,
				MimeType: "application/pdf",
			},
		},
		SkipHumanReview: true,
	}

	resp, err := client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("processing document: %w", err)
	}
	return resp.Document, nil
}
