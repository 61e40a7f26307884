package parser

import (
	"errors"
	"strings"
	"testing"
)

const sampleXES = `<?xml version="1.0" encoding="UTF-8" ?>
<log xes.version="1.0">
	<global scope="event">
		<string key="concept:name" value="__INVALID__"/>
	</global>
	<trace>
		<event>
			<string key="concept:name" value="Register"/>
			<date key="time:timestamp" value="2024-03-01T10:00:00.000+00:00"/>
			<string key="org:resource" value="ann"/>
		</event>
		<string key="concept:name" value="case &amp; 1"/>
		<event>
			<string key="concept:name" value="Check"/>
			<list key="tags">
				<string key="concept:name" value="nested"/>
			</list>
			<date key="time:timestamp" value="2024-03-01T11:00:00.000+00:00"/>
		</event>
	</trace>
	<trace>
		<string key="concept:name" value="case2"/>
		<event>
			<date key="time:timestamp" value="2024-03-01T12:00:00.000+00:00"/>
		</event>
		<event><string key="concept:name" value="Pay"/></event>
	</trace>
</log>`

func TestXESParser_Parse(t *testing.T) {
	events, err := collect(t, NewXESParser(DefaultConfig()), strings.NewReader(sampleXES))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []struct{ caseID, activity string }{
		{"case & 1", "Register"},
		{"case & 1", "Check"},
		{"case2", "Pay"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, w := range want {
		if events[i].CaseID != w.caseID || events[i].Activity != w.activity {
			t.Errorf("events[%d] = %q/%q, want %q/%q", i, events[i].CaseID, events[i].Activity, w.caseID, w.activity)
		}
	}
	if events[0].Resource != "ann" {
		t.Errorf("events[0].Resource = %q, want ann", events[0].Resource)
	}
	if events[1].Timestamp != ts("2024-03-01T11:00:00Z") {
		t.Errorf("events[1].Timestamp = %d", events[1].Timestamp)
	}
	if events[0].Seq >= events[1].Seq {
		t.Errorf("sequence not increasing: %d, %d", events[0].Seq, events[1].Seq)
	}
}

func TestXESParser_NotXES(t *testing.T) {
	_, err := collect(t, NewXESParser(DefaultConfig()), strings.NewReader("case,activity\n1,A\n"))
	if !errors.Is(err, ErrInvalidXES) {
		t.Errorf("err = %v, want ErrInvalidXES", err)
	}
}
