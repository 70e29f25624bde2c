package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionEngine uses Google Cloud Vision DOCUMENT_TEXT_DETECTION.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
	logger *slog.Logger
}

// NewVisionEngine uses credsFile when set, otherwise application default
// credentials.
func NewVisionEngine(ctx context.Context, credsFile string, logger *slog.Logger) (*VisionEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionEngine{client: client, logger: logger}, nil
}

func (e *VisionEngine) Name() string { return "vision" }

func (e *VisionEngine) Close() error { return e.client.Close() }

func (e *VisionEngine) Recognize(ctx context.Context, img Image, opts Options) ([]Fragment, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img.PNG},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			ImageContext: &visionpb.ImageContext{
				LanguageHints: opts.Languages,
			},
		}},
	}
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, errors.New("vision: empty response")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("vision: %s", r.Error.Message)
	}
	return VisionFragments(r.FullTextAnnotation), nil
}

// VisionFragments flattens pages/blocks/paragraphs/words into word fragments.
func VisionFragments(ann *visionpb.TextAnnotation) []Fragment {
	if ann == nil {
		return nil
	}
	var out []Fragment
	for _, page := range ann.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				for _, word := range para.Words {
					var sb strings.Builder
					for _, sym := range word.Symbols {
						sb.WriteString(sym.Text)
					}
					out = append(out, Fragment{
						Text:       sb.String(),
						Confidence: float64(word.Confidence),
						Box:        polyBBox(word.BoundingBox),
					})
				}
			}
		}
	}
	return out
}

func polyBBox(p *visionpb.BoundingPoly) BBox {
	if p == nil {
		return BBox{}
	}
	quad := make([]Point, 0, len(p.Vertices))
	for _, v := range p.Vertices {
		quad = append(quad, Point{X: float64(v.X), Y: float64(v.Y)})
	}
	return QuadBBox(quad)
}
