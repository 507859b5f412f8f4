package dedup

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/digest"
)

func testItem(id, url, title, snippet string) digest.Item {
	return digest.Item{
		ID:      id,
		URL:     url,
		Title:   title,
		Snippet: snippet,
		Region:  digest.RegionForeign,
	}
}

func TestRunURLLayer(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	items := []digest.Item{
		testItem("a", "https://example.com/story", "Waymo expands", "waymo expands service in phoenix"),
		testItem("b", "https://example.com/story", "Waymo expands again", "completely different body text here"),
	}

	kept, decisions, result := engine.Run(items)
	if len(kept) != 1 || kept[0].ID != "a" {
		t.Fatalf("earliest seen should survive, got %+v", kept)
	}
	if result.L1Dropped != 1 {
		t.Fatalf("L1Dropped = %d, want 1", result.L1Dropped)
	}
	if decisions[1].Layer != LayerURL || decisions[1].DuplicateOf != "a" {
		t.Fatalf("decision = %+v", decisions[1])
	}
}

func TestRunURLLayerTrackingParams(t *testing.T) {
	t.Parallel()

	// A utm-tagged republication of the same link must fall to L1 even when
	// the titles differ, so the decision names the earlier item.
	raw := []digest.RawItem{
		{Payload: digest.RawPayload{Title: "Permit granted to robotaxi fleet", Link: "https://a.com/x?utm=1"}},
		{Payload: digest.RawPayload{Title: "Robotaxi fleet wins city permit", Link: "https://a.com/x"}},
	}
	var items []digest.Item
	for _, r := range raw {
		item, ok := canonical.Canonicalize(r)
		if !ok {
			t.Fatalf("canonicalize failed for %q", r.Payload.Link)
		}
		items = append(items, item)
	}
	if items[0].URL != items[1].URL {
		t.Fatalf("normalized URLs differ: %q vs %q", items[0].URL, items[1].URL)
	}

	engine := NewEngine(zerolog.Nop())
	kept, decisions, result := engine.Run(items)
	if len(kept) != 1 || kept[0].ID != items[0].ID {
		t.Fatalf("earliest seen should survive, got %+v", kept)
	}
	if result.L1Dropped != 1 {
		t.Fatalf("L1Dropped = %d, want 1", result.L1Dropped)
	}
	if decisions[1].Layer != LayerURL || decisions[1].DuplicateOf != items[0].ID {
		t.Fatalf("decision = %+v", decisions[1])
	}
}

func TestRunTitleLayer(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	items := []digest.Item{
		testItem("a", "https://one.example.com/x", "Waymo Expands Robotaxi Service (Reuters)", "body one"),
		testItem("b", "https://two.example.com/y", "waymo expands robotaxi service!", "body two"),
	}

	kept, decisions, result := engine.Run(items)
	if len(kept) != 1 || kept[0].ID != "a" {
		t.Fatalf("kept = %+v", kept)
	}
	if result.L2Dropped != 1 {
		t.Fatalf("L2Dropped = %d, want 1", result.L2Dropped)
	}
	if decisions[1].Layer != LayerTitle {
		t.Fatalf("layer = %s, want %s", decisions[1].Layer, LayerTitle)
	}
}

func TestRunSemanticLayer(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	// Near-identical wording, distinct URLs and title keys.
	items := []digest.Item{
		testItem("a", "https://one.example.com/x", "Waymo launches robotaxi rides in Austin",
			"waymo launches fully driverless robotaxi rides for the public in austin texas this week"),
		testItem("b", "https://two.example.com/y", "Waymo launches robotaxi rides in Austin, Texas",
			"waymo launches fully driverless robotaxi rides for the public in austin texas this week"),
		testItem("c", "https://three.example.com/z", "Cruise recalls software after incident",
			"cruise issued a recall of its software following a regulator inquiry into an incident"),
	}

	kept, decisions, result := engine.Run(items)
	if result.L3Dropped != 1 {
		t.Fatalf("L3Dropped = %d, want 1", result.L3Dropped)
	}
	if decisions[1].Layer != LayerSemantic || decisions[1].DuplicateOf != "a" {
		t.Fatalf("decision = %+v", decisions[1])
	}
	if len(kept) != 2 {
		t.Fatalf("kept %d items, want 2", len(kept))
	}
}

func TestRunLayerPrecedence(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	// Same URL and same wording: L1 must claim the drop before L3 sees it.
	items := []digest.Item{
		testItem("a", "https://example.com/story", "Waymo launches robotaxi rides in Austin",
			"waymo launches driverless robotaxi rides in austin"),
		testItem("b", "https://example.com/story", "Waymo launches robotaxi rides in Austin today",
			"waymo launches driverless robotaxi rides in austin"),
	}

	_, decisions, result := engine.Run(items)
	if decisions[1].Layer != LayerURL {
		t.Fatalf("layer = %s, want %s", decisions[1].Layer, LayerURL)
	}
	if result.L3Dropped != 0 {
		t.Fatalf("L3 should never see an L1 drop")
	}
}

func TestRunRegionIsolation(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	a := testItem("a", "https://one.example.com/x", "Robotaxi fleet doubles in size",
		"the robotaxi fleet doubles in size as demand grows across the city")
	b := testItem("b", "https://two.example.com/y", "Robotaxi fleet doubles in size soon",
		"the robotaxi fleet doubles in size as demand grows across the city")
	b.Region = digest.RegionDomestic

	kept, _, result := engine.Run([]digest.Item{a, b})
	if result.L3Dropped != 0 {
		t.Fatalf("cross-region items must not be compared")
	}
	if len(kept) != 2 {
		t.Fatalf("kept %d, want 2", len(kept))
	}
}

func TestRunMalformedPassthrough(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	items := []digest.Item{
		{ID: "m1", Region: digest.RegionForeign},
		{ID: "m2", Region: digest.RegionForeign},
	}

	kept, decisions, result := engine.Run(items)
	if len(kept) != 2 {
		t.Fatalf("malformed items must pass through, kept %d", len(kept))
	}
	if result.Malformed != 2 {
		t.Fatalf("Malformed = %d, want 2", result.Malformed)
	}
	for _, d := range decisions {
		if !d.Kept || d.Layer != LayerNone {
			t.Fatalf("decision = %+v", d)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	items := []digest.Item{
		testItem("a", "https://one.example.com/x", "Waymo launches robotaxi rides in Austin",
			"waymo launches driverless robotaxi rides in austin this week"),
		testItem("b", "https://two.example.com/y", "Waymo launches robotaxi rides across Austin",
			"waymo launches driverless robotaxi rides in austin this week"),
		testItem("c", "https://three.example.com/z", "Pony.ai secures new permit in Shenzhen",
			"pony ai received a new operating permit from the shenzhen regulator"),
	}

	kept1, decisions1, _ := engine.Run(items)
	kept2, decisions2, _ := engine.Run(items)
	if !reflect.DeepEqual(kept1, kept2) || !reflect.DeepEqual(decisions1, decisions2) {
		t.Fatalf("same input must give same output")
	}
}

func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	items := []digest.Item{
		testItem("a", "https://one.example.com/x", "Waymo launches robotaxi rides in Austin",
			"waymo launches driverless robotaxi rides in austin this week"),
		testItem("b", "https://one.example.com/x", "Waymo launches robotaxi rides in Austin",
			"waymo launches driverless robotaxi rides in austin this week"),
	}

	kept, _, _ := engine.Run(items)
	again, _, result := engine.Run(kept)
	if len(again) != len(kept) {
		t.Fatalf("second pass dropped items")
	}
	if result.L1Dropped+result.L2Dropped+result.L3Dropped != 0 {
		t.Fatalf("second pass found drops: %+v", result)
	}
}

func TestDecisionPerInput(t *testing.T) {
	t.Parallel()

	engine := NewEngine(zerolog.Nop())
	items := []digest.Item{
		testItem("a", "https://one.example.com/x", "Title one", "body"),
		testItem("b", "https://one.example.com/x", "Title two", "body"),
		{ID: "m", Region: digest.RegionForeign},
	}

	_, decisions, _ := engine.Run(items)
	if len(decisions) != len(items) {
		t.Fatalf("decisions = %d, want %d", len(decisions), len(items))
	}
	for i, d := range decisions {
		if d.ItemID != items[i].ID {
			t.Fatalf("decision %d out of order: %s", i, d.ItemID)
		}
	}
}
