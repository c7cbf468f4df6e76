// Package humancheck verifies bot-protection tokens. Every verifier fails
// closed: any doubt is reported as "not human".
package humancheck

import "context"

type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// StaticVerifier accepts one configured token. Meant for local runs and tests.
type StaticVerifier struct {
	Token string
}

func NewStaticVerifier(token string) *StaticVerifier {
	return &StaticVerifier{Token: token}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (bool, error) {
	return v.Token != "" && token == v.Token, nil
}
