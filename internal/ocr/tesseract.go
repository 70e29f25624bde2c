package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
)

type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
	TempDir     string
}

// TesseractEngine shells out to the tesseract CLI in TSV mode.
type TesseractEngine struct {
	cfg    TesseractConfig
	runner runner.Runner
	logger *slog.Logger
}

func NewTesseractEngine(cfg TesseractConfig, r runner.Runner, logger *slog.Logger) *TesseractEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if r == nil {
		r = runner.Exec{Logger: logger}
	}
	return &TesseractEngine{cfg: cfg, runner: r, logger: logger}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, img Image, opts Options) ([]Fragment, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.TempDir, "spdf-tess-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)
	in := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, img.PNG, 0o600); err != nil {
		return nil, err
	}

	args := []string{in, "stdout", "-l", TesseractLanguages(opts.Languages)}
	if img.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(img.DPI))
	}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %s: %w", strings.TrimSpace(runner.Truncate(string(errb), 512)), err)
	}
	return ParseTSV(out)
}

// ParseTSV extracts word rows (level 5) from tesseract TSV output.
// Columns: level page_num block_num par_num line_num word_num left top width height conf text
func ParseTSV(out []byte) ([]Fragment, error) {
	lines := strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n")
	var frags []Fragment
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.SplitN(ln, "\t", 12)
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		var nums [4]float64
		for k := 0; k < 4; k++ {
			v, err := strconv.ParseFloat(cols[6+k], 64)
			if err != nil {
				return nil, fmt.Errorf("tsv line %d: bad geometry %q", i+1, cols[6+k])
			}
			nums[k] = v
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			conf = 0
		}
		frags = append(frags, Fragment{
			Text:       text,
			Confidence: conf / 100.0,
			Box:        BBox{X0: nums[0], Y0: nums[1], X1: nums[0] + nums[2], Y1: nums[1] + nums[3]},
		})
	}
	return frags, nil
}

var iso639ToTesseract = map[string]string{
	"en":     "eng",
	"de":     "deu",
	"fr":     "fra",
	"es":     "spa",
	"it":     "ita",
	"pt":     "por",
	"nl":     "nld",
	"sv":     "swe",
	"da":     "dan",
	"no":     "nor",
	"fi":     "fin",
	"pl":     "pol",
	"cs":     "ces",
	"tr":     "tur",
	"ru":     "rus",
	"uk":     "ukr",
	"ar":     "ara",
	"hi":     "hin",
	"ja":     "jpn",
	"ko":     "kor",
	"zh":     "chi_sim",
	"ch_sim": "chi_sim",
	"ch_tra": "chi_tra",
}

// TesseractLanguages maps ISO 639-1 codes to tesseract's "-l" argument.
// Unknown codes pass through so native tesseract names also work.
func TesseractLanguages(langs []string) string {
	var out []string
	seen := map[string]bool{}
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if m, ok := iso639ToTesseract[l]; ok {
			l = m
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return "eng"
	}
	return strings.Join(out, "+")
}
