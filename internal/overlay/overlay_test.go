package overlay

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/ocr"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestLayoutScalesTextToBox(t *testing.T) {
	frags := []ocr.Fragment{{Text: "Invoice", Confidence: 0.9, Box: ocr.BBox{X0: 100, Y0: 200, X1: 400, Y1: 250}}}
	l := Layout(0, 2550, 3300, 300, frags, Options{MinFontSize: 4})

	if !near(l.Width, 612) || !near(l.Height, 792) {
		t.Fatalf("page size = %vx%v, want 612x792", l.Width, l.Height)
	}
	if len(l.Placements) != 1 {
		t.Fatalf("placements = %d", len(l.Placements))
	}
	p := l.Placements[0]
	if !near(p.X, 24) || !near(p.Baseline, 732) {
		t.Fatalf("origin = (%v, %v), want (24, 732)", p.X, p.Baseline)
	}
	if !near(p.FontSize, 12) {
		t.Fatalf("font size = %v, want box height 12", p.FontSize)
	}
	if !near(p.Width(), 72) {
		t.Fatalf("rendered width = %v, want box width 72", p.Width())
	}
	if !p.Box.Contains(p.Rect()) {
		t.Fatalf("text rect %+v escapes box %+v", p.Rect(), p.Box)
	}
}

func TestLayoutStaysOnPage(t *testing.T) {
	frags := []ocr.Fragment{
		{Text: "top", Confidence: 1, Box: ocr.BBox{X0: 0, Y0: 0, X1: 40, Y1: 2}},
		{Text: "bottom", Confidence: 1, Box: ocr.BBox{X0: 10, Y0: 590, X1: 790, Y1: 600}},
		{Text: "overflow", Confidence: 1, Box: ocr.BBox{X0: 700, Y0: -30, X1: 1200, Y1: 40}},
		{Text: "W", Confidence: 1, Box: ocr.BBox{X0: 5, Y0: 5, X1: 6, Y1: 300}},
		{Text: "a very long line squeezed into a small box", Confidence: 1, Box: ocr.BBox{X0: 10, Y0: 100, X1: 30, Y1: 140}},
	}
	l := Layout(0, 800, 600, 150, frags, Options{MinFontSize: 6})
	if len(l.Placements) != len(frags) {
		t.Fatalf("placements = %d, want %d", len(l.Placements), len(frags))
	}
	for _, p := range l.Placements {
		if !l.Bounds().Contains(p.Rect()) {
			t.Errorf("%q: rect %+v outside page %+v", p.Text, p.Rect(), l.Bounds())
		}
		if !near(p.Width(), p.Box.X1-p.Box.X0) {
			t.Errorf("%q: width %v, box width %v", p.Text, p.Width(), p.Box.X1-p.Box.X0)
		}
	}
}

func TestLayoutFiltersFragments(t *testing.T) {
	box := ocr.BBox{X0: 10, Y0: 10, X1: 100, Y1: 40}
	frags := []ocr.Fragment{
		{Text: "keep", Confidence: 0.8, Box: box},
		{Text: "faint", Confidence: 0.2, Box: box},
		{Text: "   ", Confidence: 1, Box: box},
		{Text: "", Confidence: 1, Box: box},
		{Text: "flat", Confidence: 1, Box: ocr.BBox{X0: 10, Y0: 10, X1: 10, Y1: 40}},
		{Text: "offpage", Confidence: 1, Box: ocr.BBox{X0: 900, Y0: 10, X1: 990, Y1: 40}},
	}
	l := Layout(0, 500, 500, 72, frags, Options{MinConfidence: 0.5})
	if len(l.Placements) != 1 || l.Placements[0].Text != "keep" {
		t.Fatalf("placements = %+v", l.Placements)
	}

	l = Layout(0, 500, 500, 72, frags[:2], Options{})
	if len(l.Placements) != 2 {
		t.Fatalf("zero threshold should keep low confidence words, got %d", len(l.Placements))
	}
}

func TestEncodeWinAnsi(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"Total", []byte("Total")},
		{"café", []byte("caf\xe9")},
		{"(a\\b)", []byte("(a\\b)")},
		{"日本", []byte("??")},
		{"tab\there", []byte("tab here")},
		{"€5", []byte("\x805")},
		{"don’t", []byte("don\x92t")},
	}
	for _, tt := range tests {
		if got := encodeWinAnsi(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("encode %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGlyphWidthsCoverWinAnsi(t *testing.T) {
	tests := map[string]int{
		"—":      1000,
		"–":      556,
		"…":      1000,
		"’":      222,
		"“":      333,
		"•":      350,
		"€":      556,
		"é":      556,
		"Æ":      1000,
		"©":      737,
		"\u00a0": 278,
	}
	for in, want := range tests {
		if got := textUnits(encodeWinAnsi(in)); got != want {
			t.Errorf("width of %q = %d, want %d", in, got, want)
		}
	}
}

func TestLayoutFitsPunctuationAtPageEdge(t *testing.T) {
	// 1000x200pt page; each box ends flush with the right edge.
	for _, text := range []string{"——", "wait…", "don’t", "“quoted”"} {
		frags := []ocr.Fragment{{Text: text, Confidence: 1, Box: ocr.BBox{X0: 800, Y0: 50, X1: 1000, Y1: 90}}}
		l := Layout(0, 1000, 200, 72, frags, Options{MinFontSize: 4})
		if len(l.Placements) != 1 {
			t.Fatalf("%q: placements = %d", text, len(l.Placements))
		}
		p := l.Placements[0]
		if !near(p.Width(), 200) {
			t.Errorf("%q: rendered width %v, want box width 200", text, p.Width())
		}
		if !l.Bounds().Contains(p.Rect()) {
			t.Errorf("%q: rect %+v runs off page %+v", text, p.Rect(), l.Bounds())
		}
	}
}

func TestRound(t *testing.T) {
	for in, want := range map[float64]float64{0: 0, 12: 12, 12.5: 12.5, 1.23456: 1.235, -0.0001: 0, 1e-7: 0} {
		if got := round(in); got != want {
			t.Errorf("round(%v) = %v, want %v", in, got, want)
		}
	}
}

func grayPage(index, w, h, dpi int) document.Page {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return document.Page{Index: index, Width: w, Height: h, DPI: dpi, Image: img}
}

func rgbaPage(index, w, h, dpi int) document.Page {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return document.Page{Index: index, Width: w, Height: h, DPI: dpi, Image: img}
}

func newTestCompositor() *Compositor {
	return NewCompositor(Options{MinFontSize: 4}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func word(text string) []ocr.Fragment {
	return []ocr.Fragment{{Text: text, Confidence: 0.9, Box: ocr.BBox{X0: 10, Y0: 10, X1: 90, Y1: 30}}}
}

func TestComposeOrderAndGeometry(t *testing.T) {
	in := []PageInput{
		{Page: grayPage(2, 300, 150, 150), Fragments: word("page2")},
		{Page: rgbaPage(0, 200, 100, 100), Fragments: word("page0")},
		{Page: grayPage(1, 120, 240, 72), Fragments: word("page1")},
	}
	out, err := newTestCompositor().Compose(in)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-1.7")) || !bytes.HasSuffix(out, []byte("%%EOF\n")) {
		t.Fatalf("output is not a framed pdf")
	}

	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("pdf.NewReader: %v", err)
	}
	if r.NumPage() != 3 {
		t.Fatalf("NumPage = %d, want 3", r.NumPage())
	}

	want := []struct {
		w, h  float64
		px    int64
		py    int64
		text  string
		space string
	}{
		{144, 72, 200, 100, "page0", "DeviceRGB"},
		{120, 240, 120, 240, "page1", "DeviceGray"},
		{144, 72, 300, 150, "page2", "DeviceGray"},
	}
	for i, w := range want {
		p := r.Page(i + 1)
		box := p.V.Key("MediaBox")
		if box.Index(2).Float64() != w.w || box.Index(3).Float64() != w.h {
			t.Errorf("page %d MediaBox = %v", i, box)
		}
		xobjects := p.V.Key("Resources").Key("XObject")
		if len(xobjects.Keys()) != 1 {
			t.Fatalf("page %d xobjects = %v, want one raster", i, xobjects.Keys())
		}
		name := xobjects.Keys()[0]
		im := xobjects.Key(name)
		if im.Key("Width").Int64() != w.px || im.Key("Height").Int64() != w.py {
			t.Errorf("page %d raster = %dx%d, want %dx%d", i, im.Key("Width").Int64(), im.Key("Height").Int64(), w.px, w.py)
		}
		if cs := im.Key("ColorSpace").Name(); cs != w.space {
			t.Errorf("page %d color space = %s, want %s", i, cs, w.space)
		}

		rc := p.V.Key("Contents").Reader()
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("page %d content: %v", i, err)
		}
		s := string(content)
		if !strings.Contains(s, "/"+name+" Do") || !strings.Contains(s, "3 Tr") {
			t.Errorf("page %d content lacks raster or invisible text:\n%s", i, s)
		}
		if !strings.Contains(s, "("+w.text+") Tj") {
			t.Errorf("page %d content missing %q:\n%s", i, w.text, s)
		}
		if strings.Index(s, "/"+name+" Do") > strings.Index(s, "BT") {
			t.Errorf("page %d text drawn before raster", i)
		}
	}
}

func TestComposeRasterSamples(t *testing.T) {
	out, err := newTestCompositor().Compose([]PageInput{{Page: rgbaPage(0, 4, 3, 72)}})
	if err != nil {
		t.Fatal(err)
	}
	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatal(err)
	}
	xobjects := r.Page(1).V.Key("Resources").Key("XObject")
	rc := xobjects.Key(xobjects.Keys()[0]).Reader()
	samples, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 4*3*3 {
		t.Fatalf("samples = %d bytes, want 36", len(samples))
	}
	// pixel (3,2)
	if got := samples[(2*4+3)*3 : (2*4+3)*3+3]; !bytes.Equal(got, []byte{3, 2, 200}) {
		t.Fatalf("pixel (3,2) = %v", got)
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	in := []PageInput{{Page: grayPage(0, 50, 50, 72), Fragments: word("same")}}
	a, err := newTestCompositor().Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestCompositor().Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("identical input produced different documents")
	}
}

func TestComposeRejectsBadInput(t *testing.T) {
	tests := map[string][]PageInput{
		"empty":   nil,
		"gap":     {{Page: grayPage(0, 10, 10, 72)}, {Page: grayPage(2, 10, 10, 72)}},
		"dup":     {{Page: grayPage(0, 10, 10, 72)}, {Page: grayPage(0, 10, 10, 72)}},
		"no dpi":  {{Page: document.Page{Index: 0, Width: 10, Height: 10, Image: image.NewGray(image.Rect(0, 0, 10, 10))}}},
		"no data": {{Page: document.Page{Index: 0, Width: 10, Height: 10, DPI: 72}}},
	}
	for name, in := range tests {
		_, err := newTestCompositor().Compose(in)
		if !errors.Is(err, common.ErrPipelineFailure) {
			t.Errorf("%s: err = %v, want PipelineFailure", name, err)
		}
	}
}
