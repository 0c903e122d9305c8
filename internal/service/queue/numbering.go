package queue

import "fmt"

// MaxSequence is the largest sequence that fits in padding digits.
func MaxSequence(padding int) int {
	if padding < 1 {
		padding = 1
	}
	m := 1
	for range padding {
		m *= 10
	}
	return m - 1
}

// FormatNumber renders prefix + zero-padded sequence, e.g. ("A", 3, 1) -> "A001".
func FormatNumber(prefix string, padding, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, padding, seq)
}

// NextSequence follows last, wrapping back to 1 past MaxSequence(padding).
func NextSequence(last, padding int) int {
	next := last + 1
	if next < 1 || next > MaxSequence(padding) {
		return 1
	}
	return next
}

type numberGenerator struct {
	defaultPadding int
}

func (g numberGenerator) padding(svc ClinicService) int {
	if svc.Padding > 0 {
		return svc.Padding
	}
	return g.defaultPadding
}

// next picks the sequence after last, the most recent sequence the scope
// has issued today. last never rewinds when tickets cancel or move away, so
// a number is not handed out twice within a day. scopeTickets is only used
// to skip numbers still held by active tickets, which can happen after a wrap.
func (g numberGenerator) next(svc ClinicService, last int, scopeTickets []Ticket) (int, string, error) {
	pad := g.padding(svc)

	held := make(map[int]bool, len(scopeTickets))
	for _, t := range scopeTickets {
		if t.Status.Active() {
			held[t.Seq] = true
		}
	}

	seq := NextSequence(last, pad)
	for range MaxSequence(pad) {
		if !held[seq] {
			return seq, FormatNumber(svc.Prefix, pad, seq), nil
		}
		seq = NextSequence(seq, pad)
	}
	return 0, "", ErrNumberSpaceExhausted
}
