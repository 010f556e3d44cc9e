package lessonplan_test

import (
	"math"
	"testing"

	"github.com/p-n-ai/pai-school/internal/lessonplan"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

func TestEvaluation_RejectsOverflow(t *testing.T) {
	var items []lessonplan.EvaluationItem
	ev := lessonplan.NewEvaluation(&items)

	if _, err := ev.Add("Written Test", 60); err != nil {
		t.Fatalf("Add(60) error = %v", err)
	}

	total, err := ev.Add("Lab Report", 50)
	ve, ok := apperr.IsValidation(err)
	if !ok {
		t.Fatalf("Add(50) error = %v, want ValidationError", err)
	}
	want := "Total percentage cannot exceed 100%. Current total: 60%"
	if ve.Fields["evaluation"] != want {
		t.Errorf("message = %q, want %q", ve.Fields["evaluation"], want)
	}
	if !total.Equal(ev.Total()) || ev.Total().String() != "60" {
		t.Errorf("Total() = %s, want 60", ev.Total())
	}
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
}

func TestEvaluation_ExactDecimalSum(t *testing.T) {
	var items []lessonplan.EvaluationItem
	ev := lessonplan.NewEvaluation(&items)

	for _, pct := range []float64{33.3, 33.3, 33.4} {
		if _, err := ev.Add("Part", pct); err != nil {
			t.Fatalf("Add(%v) error = %v", pct, err)
		}
	}
	if ev.Total().String() != "100" {
		t.Errorf("Total() = %s, want 100", ev.Total())
	}
	if ev.Band() != lessonplan.BandComplete {
		t.Errorf("Band() = %q, want complete", ev.Band())
	}

	if _, err := ev.Add("Extra", 0.1); err == nil {
		t.Error("Add() past 100 should fail")
	}
}

func TestEvaluation_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		criterion string
		pct       float64
	}{
		{"blank criterion", "  ", 10},
		{"zero", "Quiz", 0},
		{"negative", "Quiz", -5},
		{"over 100", "Quiz", 100.5},
		{"NaN", "Quiz", math.NaN()},
		{"infinite", "Quiz", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []lessonplan.EvaluationItem
			ev := lessonplan.NewEvaluation(&items)
			if _, err := ev.Add(tt.criterion, tt.pct); err == nil {
				t.Error("Add() should fail")
			}
			if len(items) != 0 {
				t.Errorf("items = %d, want 0", len(items))
			}
		})
	}
}

func TestEvaluation_FullWeightAccepted(t *testing.T) {
	var items []lessonplan.EvaluationItem
	ev := lessonplan.NewEvaluation(&items)

	if _, err := ev.Add("Final exam", 100); err != nil {
		t.Fatalf("Add(100) error = %v", err)
	}
	if items[0].ID == "" || items[0].Criterion != "Final exam" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestEvaluation_Remove(t *testing.T) {
	var items []lessonplan.EvaluationItem
	ev := lessonplan.NewEvaluation(&items)
	ev.Add("Quiz", 30)
	ev.Add("Project", 50)

	ev.Remove("missing")
	if len(ev.Items()) != 2 {
		t.Fatalf("Remove(missing) changed the list")
	}

	ev.Remove(items[0].ID)
	got := ev.Items()
	if len(got) != 1 || got[0].Criterion != "Project" {
		t.Errorf("Items() = %+v", got)
	}
	if ev.Total().String() != "50" {
		t.Errorf("Total() = %s, want 50", ev.Total())
	}
}

func TestBandOf(t *testing.T) {
	tests := []struct {
		items []lessonplan.EvaluationItem
		want  lessonplan.Band
	}{
		{nil, lessonplan.BandUnder},
		{[]lessonplan.EvaluationItem{{Percentage: 99.9}}, lessonplan.BandUnder},
		{[]lessonplan.EvaluationItem{{Percentage: 70}, {Percentage: 30}}, lessonplan.BandComplete},
		{[]lessonplan.EvaluationItem{{Percentage: 70}, {Percentage: 30.5}}, lessonplan.BandOver},
	}

	for _, tt := range tests {
		if got := lessonplan.BandOf(lessonplan.TotalOf(tt.items)); got != tt.want {
			t.Errorf("BandOf(%v) = %q, want %q", tt.items, got, tt.want)
		}
	}
}
