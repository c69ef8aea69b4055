package httpfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/models"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/pdf"
)

const page = `<!DOCTYPE html><html><head><title>DICRIM de Lyon</title></head><body>
<nav>menu</nav>
<article><h1>DICRIM de Lyon</h1>
<p>Le document d'information communal sur les risques majeurs présente les risques d'inondation du Rhône et de la Saône.</p>
<p>La commune a mis en place un plan communal de sauvegarde et des repères de crue dans chaque arrondissement.</p>
<p>Les zones inondables sont cartographiées dans le plan de prévention du risque inondation, qui encadre les constructions nouvelles et impose des mesures de réduction de la vulnérabilité aux bâtiments existants situés en bord de fleuve.</p>
<p>En cas d'alerte, la mairie diffuse l'information par automate d'appel, par les panneaux lumineux et sur son site internet, et ouvre des centres d'hébergement pour les personnes évacuées.</p>
<p>Les habitants sont invités à consulter les consignes de sécurité en cas de crue ou de coulée de boue.</p>
</article></body></html>`

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecExtractsHTMLArticle(t *testing.T) {
	srv := serve(t, "text/html; charset=utf-8", page)
	res, err := Fetch{Client: srv.Client()}.Exec(context.Background(), srv.URL+"/dicrim")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ContentType != models.ContentHTML || !strings.Contains(res.Text, "plan communal de sauvegarde") {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.ContentHash == "" || res.Bytes != len(page) {
		t.Fatalf("missing metadata %+v", res)
	}
}

type fakeRenderer struct{ html string }

func (f fakeRenderer) Render(context.Context, string) (string, error) { return f.html, nil }

func TestExecUsesRenderer(t *testing.T) {
	srv := serve(t, "text/html", "<html><body><div id=app></div></body></html>")
	res, err := Fetch{Client: srv.Client(), Renderer: fakeRenderer{page}}.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !strings.Contains(res.Text, "repères de crue") {
		t.Fatalf("rendered page not used: %q", res.Text)
	}
}

func TestExecPlainText(t *testing.T) {
	srv := serve(t, "text/plain", "  arrêté de catastrophe naturelle  ")
	res, err := Fetch{Client: srv.Client()}.Exec(context.Background(), srv.URL)
	if err != nil || res.Text != "arrêté de catastrophe naturelle" || res.ContentType != models.ContentText {
		t.Fatalf("unexpected %+v, %v", res, err)
	}
}

func TestExecErrors(t *testing.T) {
	binary := serve(t, "application/octet-stream", "\x00\x01\x02")
	broken := serve(t, "application/pdf", "%PDF-1.4 garbage")
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	large := serve(t, "text/plain", strings.Repeat("a", 64))

	if _, err := (Fetch{}).Exec(context.Background(), "ftp://example.com/x"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if _, err := (Fetch{Client: binary.Client()}).Exec(context.Background(), binary.URL); !errors.Is(err, ErrUnsupportedContent) {
		t.Fatalf("expected ErrUnsupportedContent, got %v", err)
	}
	if _, err := (Fetch{Client: broken.Client()}).Exec(context.Background(), broken.URL); err == nil || errors.Is(err, pdf.ErrNotPDF) {
		t.Fatalf("expected a PDF extraction error, got %v", err)
	}
	var se *StatusError
	if _, err := (Fetch{Client: missing.Client()}).Exec(context.Background(), missing.URL); !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if _, err := (Fetch{Client: large.Client(), MaxBytes: 16}).Exec(context.Background(), large.URL); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
