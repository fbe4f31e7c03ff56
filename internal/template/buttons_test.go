package template

import "testing"

func TestParseButtons(t *testing.T) {
	raw := []byte(`[
		{"type":"QUICK_REPLY","text":"Yes"},
		{"type":"URL","text":"Track","url":"https://example.com/track/{{1}}"},
		{"type":"URL","text":"Help","url":"https://example.com/help"}
	]`)

	buttons, err := parseButtons(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(buttons) != 3 {
		t.Fatalf("parsed %d buttons, want 3", len(buttons))
	}
	if buttons[0].subType != "quick_reply" || buttons[0].dynamic {
		t.Fatalf("button 0 = %+v", buttons[0])
	}
	if !buttons[1].dynamic {
		t.Fatal("url button with variable not marked dynamic")
	}
	if buttons[2].dynamic {
		t.Fatal("static url button marked dynamic")
	}

	metas := toMeta(buttons)
	if metas[1].Index != 1 || !metas[1].Dynamic {
		t.Fatalf("meta 1 = %+v", metas[1])
	}
}

func TestParseButtonsEmptyAndInvalid(t *testing.T) {
	if buttons, err := parseButtons(nil); err != nil || buttons != nil {
		t.Fatalf("nil input: %v %v", buttons, err)
	}
	if _, err := parseButtons([]byte(`{broken`)); err == nil {
		t.Fatal("want error for invalid json")
	}
}

func TestButtonCache(t *testing.T) {
	c := newButtonCache()
	if _, ok := c.get("k"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.put("k", []parsedButton{{subType: "url"}})
	got, ok := c.get("k")
	if !ok || len(got) != 1 || got[0].subType != "url" {
		t.Fatalf("cache get = %+v ok=%v", got, ok)
	}
}
