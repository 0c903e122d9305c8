package queue

import (
	"errors"
	"testing"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		prefix  string
		padding int
		seq     int
		want    string
	}{
		{"A", 3, 1, "A001"},
		{"A", 3, 42, "A042"},
		{"DENT", 2, 7, "DENT07"},
		{"", 4, 123, "0123"},
		{"B", 1, 9, "B9"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.prefix, tt.padding, tt.seq); got != tt.want {
			t.Errorf("FormatNumber(%q, %d, %d) = %q, want %q", tt.prefix, tt.padding, tt.seq, got, tt.want)
		}
	}
}

func TestNextSequence(t *testing.T) {
	tests := []struct {
		last, padding, want int
	}{
		{0, 3, 1},
		{1, 3, 2},
		{998, 3, 999},
		{999, 3, 1},
		{9, 1, 1},
		{-5, 2, 1},
	}

	for _, tt := range tests {
		if got := NextSequence(tt.last, tt.padding); got != tt.want {
			t.Errorf("NextSequence(%d, %d) = %d, want %d", tt.last, tt.padding, got, tt.want)
		}
	}
}

func TestNumberGenerator_Next(t *testing.T) {
	gen := numberGenerator{defaultPadding: 3}
	svc := ClinicService{Prefix: "A"}

	ticket := func(seq int, status Status) Ticket { return Ticket{Seq: seq, Status: status} }

	tests := []struct {
		name    string
		svc     ClinicService
		last    int
		tickets []Ticket
		wantSeq int
		wantNum string
	}{
		{
			name:    "empty scope starts at one",
			svc:     svc,
			wantSeq: 1,
			wantNum: "A001",
		},
		{
			name:    "follows the latest issued",
			svc:     svc,
			last:    2,
			tickets: []Ticket{ticket(1, StatusFinished), ticket(2, StatusWaiting)},
			wantSeq: 3,
			wantNum: "A003",
		},
		{
			name:    "canceled tickets still advance the sequence",
			svc:     svc,
			last:    2,
			tickets: []Ticket{ticket(1, StatusWaiting), ticket(2, StatusCanceled)},
			wantSeq: 3,
			wantNum: "A003",
		},
		{
			name:    "service padding wins over default",
			svc:     ClinicService{Prefix: "B", Padding: 2},
			last:    4,
			tickets: []Ticket{ticket(4, StatusWaiting)},
			wantSeq: 5,
			wantNum: "B05",
		},
		{
			name:    "wraps past the padding limit",
			svc:     ClinicService{Prefix: "C", Padding: 1},
			last:    9,
			tickets: []Ticket{ticket(9, StatusFinished)},
			wantSeq: 1,
			wantNum: "C1",
		},
		{
			name: "skips numbers still held after a wrap",
			svc:  ClinicService{Prefix: "C", Padding: 1},
			last: 9,
			tickets: []Ticket{
				ticket(1, StatusWaiting),
				ticket(2, StatusServing),
				ticket(3, StatusFinished),
				ticket(9, StatusFinished),
			},
			wantSeq: 3,
			wantNum: "C3",
		},
		{
			name:    "tickets moved out of the scope do not rewind it",
			svc:     svc,
			last:    2,
			tickets: []Ticket{ticket(1, StatusWaiting)},
			wantSeq: 3,
			wantNum: "A003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, num, err := gen.next(tt.svc, tt.last, tt.tickets)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if seq != tt.wantSeq || num != tt.wantNum {
				t.Errorf("next = (%d, %q), want (%d, %q)", seq, num, tt.wantSeq, tt.wantNum)
			}
		})
	}
}

func TestNumberGenerator_Exhausted(t *testing.T) {
	gen := numberGenerator{defaultPadding: 3}
	svc := ClinicService{Prefix: "X", Padding: 1}

	var tickets []Ticket
	for seq := 1; seq <= 9; seq++ {
		tickets = append(tickets, Ticket{Seq: seq, Status: StatusWaiting})
	}

	if _, _, err := gen.next(svc, 9, tickets); !errors.Is(err, ErrNumberSpaceExhausted) {
		t.Fatalf("err = %v, want ErrNumberSpaceExhausted", err)
	}
}

func TestNumberGenerator_UniqueAmongActive(t *testing.T) {
	gen := numberGenerator{defaultPadding: 3}
	svc := ClinicService{Prefix: "A", Padding: 2}

	var (
		tickets []Ticket
		last    int
	)
	for i := range 250 {
		seq, num, err := gen.next(svc, last, tickets)
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		// Finish older tickets so the scope never holds more than 50.
		if len(tickets) >= 50 {
			tickets[len(tickets)-50].Status = StatusFinished
		}
		for _, other := range tickets {
			if other.Status.Active() && other.Number == num {
				t.Fatalf("issue %d: number %s already held", i, num)
			}
		}
		tickets = append(tickets, Ticket{Seq: seq, Number: num, Status: StatusWaiting})
		last = seq
	}
}
