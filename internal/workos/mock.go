package workos

import "context"

// MockClient permite tests sin llamar a WorkOS real.
type MockClient struct {
	AuthURL     string
	AuthURLErr  error
	Profile     Profile
	AccessToken string
	ExchangeErr error
	VerifyErr   error

	ExchangedCodes []string
	VerifiedTokens []string
}

func (m *MockClient) AuthorizationURL(state string) (string, error) {
	return m.AuthURL, m.AuthURLErr
}

func (m *MockClient) AuthenticateWithCode(ctx context.Context, code string) (Profile, string, error) {
	m.ExchangedCodes = append(m.ExchangedCodes, code)
	if m.ExchangeErr != nil {
		return Profile{}, "", m.ExchangeErr
	}
	return m.Profile, m.AccessToken, nil
}

func (m *MockClient) GetUserFromToken(ctx context.Context, token string) (Profile, error) {
	m.VerifiedTokens = append(m.VerifiedTokens, token)
	if m.VerifyErr != nil {
		return Profile{}, m.VerifyErr
	}
	return m.Profile, nil
}
