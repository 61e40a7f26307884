package discovery

import (
	"reflect"
	"testing"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

func trace(count int64, activities ...Activity) WeightedTrace {
	return WeightedTrace{Activities: activities, Count: count}
}

// xorDiamond is [A,B,D]x5, [A,C,D]x3.
func xorDiamond() []WeightedTrace {
	return []WeightedTrace{
		trace(5, "A", "B", "D"),
		trace(3, "A", "C", "D"),
	}
}

// andDiamond is [A,B,C,D]x2, [A,C,B,D]x2.
func andDiamond() []WeightedTrace {
	return []WeightedTrace{
		trace(2, "A", "B", "C", "D"),
		trace(2, "A", "C", "B", "D"),
	}
}

func TestNewTraceIndex_GroupsIdenticalTraces(t *testing.T) {
	idx, err := NewTraceIndex([]WeightedTrace{
		trace(2, "A", "B"),
		trace(1, "A", "C"),
		trace(3, "A", "B"),
	})
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}

	want := []WeightedTrace{trace(5, "A", "B"), trace(1, "A", "C")}
	if !reflect.DeepEqual(idx.Traces, want) {
		t.Errorf("Traces = %v, want %v", idx.Traces, want)
	}

	wantFreq := ActivityFrequency{"A": 6, "B": 5, "C": 1}
	if !reflect.DeepEqual(idx.Frequency, wantFreq) {
		t.Errorf("Frequency = %v, want %v", idx.Frequency, wantFreq)
	}
	if idx.Cases != 6 {
		t.Errorf("Cases = %d, want 6", idx.Cases)
	}
	if idx.MaxTraceCount() != 5 {
		t.Errorf("MaxTraceCount = %d, want 5", idx.MaxTraceCount())
	}
}

func TestNewTraceIndex_RepeatedActivityCountsEveryOccurrence(t *testing.T) {
	idx, err := NewTraceIndex([]WeightedTrace{trace(4, "A", "B", "A")})
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}
	if idx.Frequency["A"] != 8 {
		t.Errorf("Frequency[A] = %d, want 8", idx.Frequency["A"])
	}
}

func TestNewTraceIndex_StableOnTies(t *testing.T) {
	idx, err := NewTraceIndex([]WeightedTrace{
		trace(2, "Y"),
		trace(7, "Z"),
		trace(2, "X"),
	})
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}

	var got []string
	for _, tr := range idx.Traces {
		got = append(got, tr.String())
	}
	want := []string{"Z", "Y", "X"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestNewTraceIndex_SkipsEmptyAndZeroCount(t *testing.T) {
	idx, err := NewTraceIndex([]WeightedTrace{
		trace(3),
		trace(0, "A"),
		trace(1, "B"),
	})
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}
	if len(idx.Traces) != 1 || idx.Traces[0].Activities[0] != "B" {
		t.Errorf("Traces = %v, want only [B]", idx.Traces)
	}
	if _, ok := idx.Frequency["A"]; ok {
		t.Error("zero-count trace contributed to frequency")
	}
}

func TestNewTraceIndex_Errors(t *testing.T) {
	tests := []struct {
		name   string
		traces []WeightedTrace
		code   lferrors.Code
	}{
		{"nil", nil, lferrors.CodeEmptyLog},
		{"only empty", []WeightedTrace{trace(1)}, lferrors.CodeEmptyLog},
		{"negative count", []WeightedTrace{trace(-1, "A")}, lferrors.CodeInvalidTrace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTraceIndex(tt.traces)
			if !lferrors.IsCode(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestNewTraceIndex_DoesNotAliasInput(t *testing.T) {
	in := []WeightedTrace{trace(1, "A", "B")}
	idx, err := NewTraceIndex(in)
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}
	in[0].Activities[0] = "Z"
	if idx.Traces[0].Activities[0] != "A" {
		t.Error("index shares activity slice with caller")
	}
}
