package report

import (
	"fmt"
	"strings"
)

// Policy decides what a per-record failure does to the run.
type Policy uint8

const (
	// Abort stops the run at the first failure.
	Abort Policy = iota
	// Skip records the failure in the Summary and moves on.
	Skip
)

func (p Policy) String() string {
	if p == Skip {
		return "skip"
	}
	return "abort"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	}
	return Abort, fmt.Errorf("unknown error policy %q (want abort or skip)", s)
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Handle applies the policy to one failure. Under Skip the failure is added
// to sum and nil is returned; under Abort sum is marked aborted and err is
// returned unchanged.
func (p Policy) Handle(sum *Summary, f Failure, err error) error {
	if err == nil {
		return nil
	}

	if f.Error == "" {
		f.Error = err.Error()
	}

	if p == Skip {
		sum.Skip(f)
		return nil
	}

	sum.Abort(f)
	return err
}
