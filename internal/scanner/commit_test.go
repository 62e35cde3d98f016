package scanner_test

import (
	"context"
	"testing"

	"creditscan/internal/config"
	"creditscan/internal/segments"
	"creditscan/internal/testsupport"
)

func TestInsertTimingsIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ctx := context.Background()
	if err := h.store.Upsert(ctx, ep); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ep.ReferenceIntro = &segments.Segment{Start: 5, End: 65}
	ep.Segments.Append(segments.Segment{Start: 30, End: 90})
	ep.Segments.Append(segments.Segment{Start: 1250, End: 1310, IsCredits: true})
	ep.Segments.Append(segments.Segment{Start: 1310, End: 1320, IsCredits: true, IsSilence: true})

	for range 2 {
		if err := h.scanner.InsertTimings(ctx, ep, h.cfg.Detection); err != nil {
			t.Fatalf("InsertTimings: %v", err)
		}
	}

	rows := h.plex.Markers(ep.MetaID)
	want := []testsupport.MarkerRow{
		{Index: 1, Text: "intro", StartMs: 28000, EndMs: 88000},
		{Index: 2, Text: "credits", StartMs: 1248000, EndMs: 1308000},
		{Index: 3, Text: "credits", StartMs: 1308000, EndMs: 1318000},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d markers, got %+v", len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("marker %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	stored, err := h.store.NonReferenceTimings(ctx, ep.ID)
	if err != nil || stored.Len() != 3 {
		t.Fatalf("expected three stored timings, got %v %v", stored.All(), err)
	}
	ref, err := h.store.ReferenceTiming(ctx, ep.ID)
	if err != nil || ref == nil || ref.Start != 5 {
		t.Fatalf("expected reference timing recorded, got %v %v", ref, err)
	}
}

func TestInsertTimingsMergesAndClampsShift(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ctx := context.Background()
	ep.Segments.Append(segments.Segment{Start: 1, End: 25})
	ep.Segments.Append(segments.Segment{Start: 26, End: 40})

	if err := h.scanner.InsertTimings(ctx, ep, h.cfg.Detection); err != nil {
		t.Fatalf("InsertTimings: %v", err)
	}
	rows := h.plex.Markers(ep.MetaID)
	if len(rows) != 1 || rows[0].StartMs != 0 || rows[0].EndMs != 38000 {
		t.Fatalf("expected one merged marker starting at zero, got %+v", rows)
	}
}

func TestInsertTimingsNumbersMarkersAfterDroppingEmpty(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ctx := context.Background()
	// The shift empties the first entry.
	ep.Segments.Append(segments.Segment{Start: 0, End: 1.5})
	ep.Segments.Append(segments.Segment{Start: 30, End: 90})
	ep.Segments.Append(segments.Segment{Start: 1200, End: 1290, IsCredits: true})

	if err := h.scanner.InsertTimings(ctx, ep, h.cfg.Detection); err != nil {
		t.Fatalf("InsertTimings: %v", err)
	}
	rows := h.plex.Markers(ep.MetaID)
	if len(rows) != 2 {
		t.Fatalf("expected the empty entry dropped, got %+v", rows)
	}
	if rows[0].Index != 1 || rows[0].Text != "intro" || rows[0].StartMs != 28000 {
		t.Fatalf("unexpected first marker: %+v", rows[0])
	}
	if rows[1].Index != 2 || rows[1].Text != "credits" {
		t.Fatalf("expected contiguous index for credits, got %+v", rows[1])
	}
}

func TestHandleInsertRecordsEpisodeWithoutMatches(t *testing.T) {
	h := newHarness(t, testsupport.WithDetection(func(d *config.Detection) {
		d.DetectSilenceAfterCredits = false
	}))
	ep := detectionEpisode(t, h)
	ep.DetectionPending = true
	ctx := context.Background()

	if err := h.scanner.HandleInsert(ctx, ep, h.cfg.Detection, 0); err != nil {
		t.Fatalf("HandleInsert: %v", err)
	}
	if ep.NeedsScanning || ep.DetectionPending {
		t.Fatalf("expected flags cleared: %+v", ep)
	}
	rec, err := h.store.GetRecord(ctx, ep.ID)
	if err != nil || rec == nil {
		t.Fatalf("expected episode recorded, got %v %v", rec, err)
	}
	if rows := h.plex.Markers(ep.MetaID); len(rows) != 0 {
		t.Fatalf("expected no markers, got %+v", rows)
	}
}

func TestHandleInsertRunsSilencePass(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ep.NeedsScanning = false
	ep.NeedsSilenceScanning = true
	ep.SilenceDetectionPending = true
	h.cutter.silence = []segments.Segment{{Start: 10, End: 20, IsSilence: true}}
	ctx := context.Background()

	if err := h.scanner.HandleInsert(ctx, ep, h.cfg.Detection, 0); err != nil {
		t.Fatalf("HandleInsert: %v", err)
	}
	if !ep.SilenceDetectionDone || ep.SilenceDetectionPending || ep.NeedsSilenceScanning {
		t.Fatalf("expected silence flags settled: %+v", ep)
	}
	rows := h.plex.Markers(ep.MetaID)
	// Credits window [924, 1320) shifted by the silence offset and the 2s marker shift.
	if len(rows) != 1 || rows[0].Text != "credits" || rows[0].StartMs != 932000 || rows[0].EndMs != 942000 {
		t.Fatalf("unexpected markers: %+v", rows)
	}
}
