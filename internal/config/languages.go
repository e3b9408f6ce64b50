// ABOUTME: Supported call languages
// ABOUTME: Maps short codes to the BCP-47 codes the bridge expects
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Languages maps supported BCP-47 codes to display names
var Languages = map[string]string{
	"en-US": "English",
	"fr-FR": "Français",
	"es-ES": "Español",
	"de-DE": "Deutsch",
	"it-IT": "Italiano",
	"pt-BR": "Português",
	"ru-RU": "Русский",
	"ja-JP": "日本語",
	"ko-KR": "한국어",
	"zh-CN": "中文",
}

// shortCodes maps a bare language to its full code
var shortCodes = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
	"es": "es-ES",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"ru": "ru-RU",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "zh-CN",
}

// NormalizeLanguage returns the full supported code for code. Case and
// underscores are tolerated: "EN", "en_us" and "en-US" all yield "en-US".
func NormalizeLanguage(code string) (string, error) {
	c := strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	if c == "" {
		return "", fmt.Errorf("language is required")
	}

	lang, region, hasRegion := strings.Cut(c, "-")
	lang = strings.ToLower(lang)
	if !hasRegion {
		if full, ok := shortCodes[lang]; ok {
			return full, nil
		}
		return "", fmt.Errorf("unsupported language %q (supported: %s)", code, strings.Join(SupportedLanguages(), ", "))
	}

	full := lang + "-" + strings.ToUpper(region)
	if _, ok := Languages[full]; ok {
		return full, nil
	}
	return "", fmt.Errorf("unsupported language %q (supported: %s)", code, strings.Join(SupportedLanguages(), ", "))
}

// SupportedLanguages returns the supported codes in sorted order
func SupportedLanguages() []string {
	codes := make([]string, 0, len(Languages))
	for code := range Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LanguageName returns the display name of a supported code
func LanguageName(code string) string {
	if name, ok := Languages[code]; ok {
		return name
	}
	return code
}
