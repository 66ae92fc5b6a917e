package vision

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"gatewatch/internal/utils"
)

type PlateConfig struct {
	Endpoint string
	// Weights selects the plate detector model on the OCR service. Plate
	// reading is disabled when empty.
	Weights string
	MinConf float64
	Langs   string
}

// HTTPPlateRecognizer asks an OCR service for plate readings and keeps the
// most confident one.
type HTTPPlateRecognizer struct {
	cfg        PlateConfig
	httpClient *http.Client
}

// NewPlateRecognizer returns NopRecognizer unless plate detector weights are
// configured.
func NewPlateRecognizer(cfg PlateConfig) PlateRecognizer {
	if cfg.Weights == "" || cfg.Endpoint == "" {
		return NopRecognizer{}
	}
	return &HTTPPlateRecognizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: inferenceTimeout},
	}
}

type plateReading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type plateResponse struct {
	Plates []plateReading `json:"plates"`
}

func (p *HTTPPlateRecognizer) Recognize(ctx context.Context, frame *Frame) (string, error) {
	q := url.Values{
		"weights": {p.cfg.Weights},
		"conf":    {strconv.FormatFloat(p.cfg.MinConf, 'f', -1, 64)},
	}
	if p.cfg.Langs != "" {
		q.Set("langs", p.cfg.Langs)
	}

	var resp plateResponse
	if err := postFrame(ctx, p.httpClient, p.cfg.Endpoint, q, frame, &resp); err != nil {
		return "", err
	}
	if len(resp.Plates) == 0 {
		return "", nil
	}

	best := resp.Plates[0]
	for _, r := range resp.Plates[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return utils.NormalizePlate(best.Text), nil
}
