package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
)

// easyOCRResponseSchema describes the sidecar's /readtext reply. Each box is
// the four corners of the detected quadrilateral, clockwise from top-left.
const easyOCRResponseSchema = `{
  "type": "object",
  "required": ["results"],
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["box", "text", "confidence"],
        "properties": {
          "box": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {
              "type": "array",
              "minItems": 2,
              "maxItems": 2,
              "items": {"type": "number"}
            }
          },
          "text": {"type": "string"},
          "confidence": {"type": "number"}
        }
      }
    }
  }
}`

type easyOCRRequest struct {
	ImageBase64 string   `json:"image_base64"`
	Languages   []string `json:"languages"`
	GPU         bool     `json:"gpu"`
}

type easyOCRResponse struct {
	Results []struct {
		Box        [][2]float64 `json:"box"`
		Text       string       `json:"text"`
		Confidence float64      `json:"confidence"`
	} `json:"results"`
}

// EasyOCREngine calls an EasyOCR HTTP sidecar.
type EasyOCREngine struct {
	baseURL string
	client  *http.Client
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

func NewEasyOCREngine(baseURL string, client *http.Client, logger *slog.Logger) (*EasyOCREngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	schema, err := jsonschema.CompileString("easyocr_response.json", easyOCRResponseSchema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &EasyOCREngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		schema:  schema,
		logger:  logger,
	}, nil
}

func (e *EasyOCREngine) Name() string { return "easyocr" }

func (e *EasyOCREngine) Recognize(ctx context.Context, img Image, opts Options) ([]Fragment, error) {
	req := easyOCRRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(img.PNG),
		Languages:   easyOCRLanguages(opts.Languages),
		GPU:         opts.GPU,
	}
	raw, status, err := sendJSON(ctx, e.client, e.baseURL+"/readtext", req, e.logger)
	if err != nil {
		if status != 0 {
			return nil, fmt.Errorf("easyocr: %w: %s", err, runner.Truncate(string(raw), 512))
		}
		return nil, fmt.Errorf("easyocr: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("easyocr: unmarshal response: %w", err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("easyocr: response does not match schema: %w", err)
	}
	var resp easyOCRResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("easyocr: decode response: %w", err)
	}

	frags := make([]Fragment, 0, len(resp.Results))
	for _, r := range resp.Results {
		quad := make([]Point, len(r.Box))
		for i, p := range r.Box {
			quad[i] = Point{X: p[0], Y: p[1]}
		}
		frags = append(frags, Fragment{Text: r.Text, Confidence: r.Confidence, Box: QuadBBox(quad)})
	}
	return frags, nil
}

// EasyOCR names Chinese scripts ch_sim/ch_tra; everything else is ISO 639-1.
func easyOCRLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		switch l = strings.ToLower(strings.TrimSpace(l)); l {
		case "":
			continue
		case "zh":
			out = append(out, "ch_sim")
		default:
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		out = append(out, "en")
	}
	return out
}
