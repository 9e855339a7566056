package models

import (
	"encoding/json"
	"testing"
)

func TestMessageContent_WireShapes(t *testing.T) {
	// Plain text rides as a JSON string.
	plain := Message{Role: RoleUser, Content: TextContent("hello")}
	b, err := json.Marshal(plain)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"role":"user","content":"hello"}` {
		t.Fatalf("plain text wire form: %s", b)
	}

	// Composite bodies ride as an array of typed parts.
	composite := Message{Role: RoleUser, Content: PartsContent([]ContentPart{
		{Type: "text", Text: "look"},
		{Type: "image_url", ImageURL: &ImageRef{URL: "http://x/a.png"}},
	})}
	b, err = json.Marshal(composite)
	if err != nil {
		t.Fatalf("marshal composite: %v", err)
	}

	var back Message
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal composite: %v", err)
	}
	if back.Content.Parts == nil || len(back.Content.Parts) != 2 {
		t.Fatalf("composite round trip lost parts: %+v", back.Content)
	}
	if back.Content.Parts[1].ImageURL.URL != "http://x/a.png" {
		t.Fatal("image reference lost in round trip")
	}

	// Each shape comes back as the shape it left in.
	var plainBack Message
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":"hi"}`), &plainBack); err != nil {
		t.Fatalf("unmarshal plain: %v", err)
	}
	if plainBack.Content.Parts != nil || plainBack.Content.Text != "hi" {
		t.Fatalf("plain round trip: %+v", plainBack.Content)
	}
}

func TestMessageContent_FirstText(t *testing.T) {
	if got := TextContent("abc").FirstText(); got != "abc" {
		t.Fatalf("plain: %q", got)
	}

	composite := PartsContent([]ContentPart{
		{Type: "image_url", ImageURL: &ImageRef{URL: "http://x/a.png"}},
		{Type: "text", Text: "caption"},
	})
	if got := composite.FirstText(); got != "caption" {
		t.Fatalf("composite: %q", got)
	}

	imageOnly := PartsContent([]ContentPart{
		{Type: "image_url", ImageURL: &ImageRef{URL: "http://x/a.png"}},
	})
	if got := imageOnly.FirstText(); got != "" {
		t.Fatalf("image only: %q", got)
	}
}

func TestFindModel(t *testing.T) {
	if m := FindModel(DefaultModelID); m == nil {
		t.Fatal("default model must be in the catalog")
	}
	if m := FindModel("nobody/invented-this"); m != nil {
		t.Fatal("unknown ids must miss")
	}
}
