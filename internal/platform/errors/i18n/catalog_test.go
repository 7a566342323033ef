package i18n

import (
	"testing"

	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	if fallback := GetCatalog("missing-locale"); fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
	if empty := GetCatalog(""); empty != base {
		t.Fatal("expected empty locale to resolve to en-US")
	}
}

func TestGetCatalogMatchesLanguage(t *testing.T) {
	if got := GetCatalog("pt").Locale(); got != "pt-BR" {
		t.Fatalf("GetCatalog(pt) = %s, want pt-BR", got)
	}
	if got := GetCatalog("en-GB").Locale(); got != "en-US" {
		t.Fatalf("GetCatalog(en-GB) = %s, want en-US", got)
	}
}

func TestEveryCodeHasMessage(t *testing.T) {
	codes := []platformerrors.Code{
		platformerrors.CodeSpawn, platformerrors.CodeTimeout, platformerrors.CodeCrashed,
		platformerrors.CodeProtocol, platformerrors.CodeIllegalMove, platformerrors.CodeStreamClosed,
		platformerrors.CodeRules, platformerrors.CodeCancelled, platformerrors.CodeInvalidConfig,
		platformerrors.CodeStorage, platformerrors.CodeNotFound, platformerrors.CodeUnknown,
	}
	for _, cat := range []*Catalog{enUSCatalog, ptBRCatalog} {
		for _, code := range codes {
			if _, ok := cat.messages[code]; !ok {
				t.Fatalf("%s catalog is missing %s", cat.Locale(), code)
			}
		}
	}
}

func TestFormatRendersMetadata(t *testing.T) {
	got := GetCatalog("en-US").Format(platformerrors.CodeTimeout, map[string]string{
		"player":     "player2",
		"time_index": "3",
	})
	if want := "player2 did not answer in time at time index 3"; got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[platformerrors.Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[platformerrors.Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[platformerrors.Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}
