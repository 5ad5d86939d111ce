package censor_test

import (
	"context"
	"errors"
	"testing"

	"storyreel/internal/censor"
	"storyreel/internal/services/speech"
	"storyreel/internal/testsupport"
)

func TestMaskTextStarsWholeWordsOnly(t *testing.T) {
	c := censor.New([]string{"heck", "darn"})

	got := c.MaskText("What the heck, Heck! Checking in, darn it.")
	want := "What the h***, H***! Checking in, d*** it."
	if got != want {
		t.Fatalf("MaskText: got %q want %q", got, want)
	}
}

func TestMaskTextKeepsMultibyteFirstRuneIntact(t *testing.T) {
	c := censor.New([]string{"ärger", "ördög"})

	got := c.MaskText("So ein Ärger, du ördög!")
	want := "So ein Ä****, du ö****!"
	if got != want {
		t.Fatalf("MaskText: got %q want %q", got, want)
	}
}

func TestMaskTextNoTermsIsIdentity(t *testing.T) {
	c := censor.New(nil)
	text := "Nothing to hide here."
	if got := c.MaskText(text); got != text {
		t.Fatalf("expected identity, got %q", got)
	}
}

func TestIntervalsAlignToWordMarks(t *testing.T) {
	c := censor.New([]string{"heck"})
	marks := []speech.WordMark{
		{Word: "what", StartMS: 0, EndMS: 200},
		{Word: "the", StartMS: 220, EndMS: 300},
		{Word: "heck,", StartMS: 320, EndMS: 600},
		{Word: "friend", StartMS: 650, EndMS: 900},
	}

	intervals := c.Intervals(marks)
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %#v", intervals)
	}
	if intervals[0].StartMS != 320 || intervals[0].EndMS != 600 {
		t.Fatalf("unexpected interval: %#v", intervals[0])
	}
}

func TestIntervalsMergeAdjacentCensoredWords(t *testing.T) {
	c := censor.New([]string{"heck", "darn"})
	marks := []speech.WordMark{
		{Word: "heck", StartMS: 100, EndMS: 300},
		{Word: "darn", StartMS: 300, EndMS: 500},
		{Word: "fine", StartMS: 550, EndMS: 700},
		{Word: "darn", StartMS: 800, EndMS: 950},
	}

	intervals := c.Intervals(marks)
	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %#v", intervals)
	}
	if intervals[0].StartMS != 100 || intervals[0].EndMS != 500 {
		t.Fatalf("unexpected merged interval: %#v", intervals[0])
	}
	if intervals[1].StartMS != 800 {
		t.Fatalf("unexpected second interval: %#v", intervals[1])
	}
}

type stubLister struct {
	terms []string
	err   error
	calls int
}

func (s *stubLister) ListCensorTerms(_ context.Context, _ string) ([]string, error) {
	s.calls++
	return s.terms, s.err
}

func TestVocabularyCachesDetectedTerms(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lister := &stubLister{terms: []string{"Heck"}}
	vocab := censor.NewVocabulary(st, lister, nil)

	c, err := vocab.CensorFor(ctx, "what the heck")
	if err != nil {
		t.Fatalf("CensorFor failed: %v", err)
	}
	if c.Empty() {
		t.Fatal("expected detected term in censor")
	}

	cached, err := st.CensorTerms(ctx)
	if err != nil {
		t.Fatalf("CensorTerms failed: %v", err)
	}
	if len(cached) != 1 || cached[0] != "heck" {
		t.Fatalf("expected cached term, got %#v", cached)
	}
}

func TestVocabularyFallsBackToCacheOnDetectionFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.SaveCensorTerms(ctx, []string{"darn"}); err != nil {
		t.Fatalf("SaveCensorTerms failed: %v", err)
	}

	lister := &stubLister{err: errors.New("model down")}
	vocab := censor.NewVocabulary(st, lister, nil)

	c, err := vocab.CensorFor(ctx, "darn it")
	if err != nil {
		t.Fatalf("CensorFor failed: %v", err)
	}
	if got := c.MaskText("darn it"); got != "d*** it" {
		t.Fatalf("expected cached vocabulary to apply, got %q", got)
	}
}
