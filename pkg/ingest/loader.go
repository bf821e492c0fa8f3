package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/itchyny/gojq"
	"github.com/kaptinlin/jsonrepair"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
)

// LoadOption configures [Load].
type LoadOption func(*loadConfig)

type loadConfig struct {
	jq string
}

// WithJQ filters JSON documents through a jq expression before they are
// re-emitted as text. Every result the expression yields becomes one
// indented JSON document in the output. Other formats ignore it.
func WithJQ(expr string) LoadOption {
	return func(c *loadConfig) { c.jq = expr }
}

// Formats lists the extensions Load understands.
var Formats = []string{".pdf", ".docx", ".txt", ".sql", ".csv", ".json"}

// Load extracts the text of the file at path.
//
// The reader is chosen by the lower-cased extension. Unknown extensions
// return an error wrapping [ErrUnsupportedFormat]; failures of a reader are
// returned as [*ExtractError].
func Load(ctx context.Context, path string, opts ...LoadOption) (string, error) {
	var cfg loadConfig
	for _, o := range opts {
		o(&cfg)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = loadPDF(ctx, path)
	case ".docx":
		text, err = loadDOCX(path)
	case ".txt", ".sql":
		text, err = loadText(path)
	case ".csv":
		text, err = loadCSV(path)
	case ".json":
		text, err = loadJSON(ctx, path, cfg.jq)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", &ExtractError{Path: path, Format: strings.TrimPrefix(ext, "."), Err: err}
	}
	return text, nil
}

// loadPDF joins the plain text of every page, each followed by a newline.
// Pages without text are skipped.
func loadPDF(ctx context.Context, path string) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pt, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if pt == "" {
			continue
		}
		sb.WriteString(pt)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// loadDOCX reads word/document.xml and joins paragraph text with newlines.
func loadDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	rc, err := zr.Open("word/document.xml")
	if err != nil {
		return "", fmt.Errorf("not a word document: %w", err)
	}
	defer rc.Close()

	const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	var (
		paras  []string
		cur    strings.Builder
		inPara bool
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				inPara = true
				cur.Reset()
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if inPara {
					paras = append(paras, cur.String())
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return strings.Join(paras, "\n"), nil
}

// loadText reads UTF-8 text, decoding the file as Latin-1 when it is not
// valid UTF-8.
func loadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// loadCSV joins each row's cells with a space and rows with newlines.
func loadCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		rows = append(rows, strings.Join(rec, " "))
	}
	return strings.Join(rows, "\n"), nil
}

// loadJSON parses the document, repairing it if it is malformed, and
// re-emits it with two-space indentation.
func loadJSON(ctx context.Context, path, expr string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		var syn *json.SyntaxError
		if !errors.As(err, &syn) {
			return "", err
		}
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return "", fmt.Errorf("%w (repair: %v)", err, rerr)
		}
		if err := json.Unmarshal([]byte(fixed), &v); err != nil {
			return "", err
		}
	}

	docs := []any{v}
	if expr != "" {
		docs, err = runJQ(ctx, expr, v)
		if err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return "", err
		}
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func runJQ(ctx context.Context, expr string, input any) ([]any, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	var out []any
	iter := q.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq error: %w", err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("jq expression %q returned no result", expr)
	}
	return out, nil
}
