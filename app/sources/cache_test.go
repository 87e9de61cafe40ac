package sources

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	content := `
settings:
  enabled: true
  listing_url: "/board/list/nutrition?page=1"
  kind: "forum"
  render: true
  wait_selector: ".board-list"
  page_cap: 30

keywords:
  - "vitamin"
  - "protein"
`

	err := os.WriteFile(filepath.Join(tempDir, "nutrition.yml"), []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cache := NewCache(tempDir)
	err = cache.Run()
	if err != nil {
		t.Fatal(err)
	}

	if cache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 config, got %d", cache.GetConfigCount())
	}

	config, err := cache.GetConfig("nutrition")
	if err != nil {
		t.Fatal(err)
	}

	if config.Name != "nutrition" {
		t.Errorf("Expected name 'nutrition', got '%s'", config.Name)
	}
	if config.Settings.ListingURL != "/board/list/nutrition?page=1" {
		t.Errorf("Unexpected listing URL '%s'", config.Settings.ListingURL)
	}
	if config.Settings.Kind != KindForum {
		t.Errorf("Expected kind forum, got '%s'", config.Settings.Kind)
	}
	if config.Settings.PageCap != 30 {
		t.Errorf("Expected page cap 30, got %d", config.Settings.PageCap)
	}
	if len(config.Keywords) != 2 {
		t.Errorf("Expected 2 keywords, got %d", len(config.Keywords))
	}
}

func TestCacheLoadConfigWithDefaults(t *testing.T) {
	tempDir := t.TempDir()

	content := `
settings:
  enabled: true
  listing_url: "/news/list"
`

	err := os.WriteFile(filepath.Join(tempDir, "news.yml"), []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cache := NewCache(tempDir)
	if err := cache.Run(); err != nil {
		t.Fatal(err)
	}

	config, err := cache.GetConfig("news")
	if err != nil {
		t.Fatal(err)
	}

	if config.Settings.Kind != KindArticle {
		t.Errorf("Expected default kind article, got '%s'", config.Settings.Kind)
	}
	if config.Settings.PageCap != 0 {
		t.Errorf("Expected zero page cap default, got %d", config.Settings.PageCap)
	}
}

func TestCacheRejectsMissingListingURL(t *testing.T) {
	tempDir := t.TempDir()

	content := `
settings:
  enabled: true
  kind: "article"
`

	err := os.WriteFile(filepath.Join(tempDir, "broken.yml"), []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cache := NewCache(tempDir)
	if err := cache.Run(); err == nil {
		t.Error("Expected error for config without listing URL")
	}
}

func TestCacheRejectsInvalidKind(t *testing.T) {
	tempDir := t.TempDir()

	content := `
settings:
  enabled: true
  listing_url: "/list"
  kind: "video"
`

	err := os.WriteFile(filepath.Join(tempDir, "video.yml"), []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cache := NewCache(tempDir)
	if err := cache.Run(); err == nil {
		t.Error("Expected error for invalid kind")
	}
}

func TestCacheEnabledConfigsSorted(t *testing.T) {
	tempDir := t.TempDir()

	for _, name := range []string{"zeta", "alpha", "midway"} {
		content := "settings:\n  enabled: true\n  listing_url: \"/list/" + name + "\"\n"
		if err := os.WriteFile(filepath.Join(tempDir, name+".yml"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	disabled := "settings:\n  enabled: false\n  listing_url: \"/list/off\"\n"
	if err := os.WriteFile(filepath.Join(tempDir, "off.yml"), []byte(disabled), 0644); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(tempDir)
	if err := cache.Run(); err != nil {
		t.Fatal(err)
	}

	enabled := cache.GetEnabledConfigs()
	if len(enabled) != 3 {
		t.Fatalf("Expected 3 enabled configs, got %d", len(enabled))
	}
	want := []string{"alpha", "midway", "zeta"}
	for i, config := range enabled {
		if config.Name != want[i] {
			t.Errorf("Position %d: expected '%s', got '%s'", i, want[i], config.Name)
		}
	}
}
