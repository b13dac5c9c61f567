package pipeline

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"pharosbot/internal/account"
	"pharosbot/internal/api"
	"pharosbot/internal/core"
	"pharosbot/internal/runstate"
)

// runHTTP performs login, check-in, faucet and profile. It reports false only
// when login did not yield a session token.
func (p *Pipeline) runHTTP(ctx context.Context, em *core.Emitter, key *ecdsa.PrivateKey, inviteCode string) (runstate.TaskResult, bool) {
	address := em.Address()

	login := em.Step("login")
	login.Info("Logging in...")
	token, err := p.login(ctx, address, key, inviteCode)
	if err != nil {
		msg := "Login failed: " + err.Error()
		login.Error(msg)
		return runstate.TaskResult{Message: msg}, false
	}
	login.Success("Login successful! JWT obtained.")

	checkIn := em.Step("check_in")
	if err := p.retry.Soft.Do(ctx, p.clock, func(ctx context.Context) error {
		return p.service.CheckIn(ctx, address, token)
	}); err != nil {
		checkIn.Warn("Check-in failed: %v", err)
	} else {
		checkIn.Success("Check-in successful")
	}

	p.faucet(ctx, em.Step("faucet"), address, token)

	message := "Login successful"
	profile := em.Step("profile")
	var prof api.Profile
	if err := p.retry.Soft.Do(ctx, p.clock, func(ctx context.Context) error {
		var err error
		prof, err = p.service.Profile(ctx, address, token)
		return err
	}); err != nil {
		profile.Warn("Profile fetch failed: %v", err)
	} else {
		message = fmt.Sprintf("Success! ID: %s | Points: %d | Total: %d", prof.ID, prof.TaskPoints, prof.TotalPoints)
		profile.Success(message)
	}

	return runstate.TaskResult{Success: true, Message: message, SessionToken: token}, true
}

func (p *Pipeline) login(ctx context.Context, address string, key *ecdsa.PrivateKey, inviteCode string) (string, error) {
	signature, err := account.SignMessage(key, []byte(p.loginMessage))
	if err != nil {
		return "", err
	}

	var token string
	err = p.retry.Auth.Do(ctx, p.clock, func(ctx context.Context) error {
		var err error
		token, err = p.service.Login(ctx, address, signature, inviteCode)
		return err
	})
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", api.ErrNoSessionToken
	}
	return token, nil
}

func (p *Pipeline) faucet(ctx context.Context, em *core.Emitter, address, token string) {
	var able bool
	if err := p.retry.Soft.Do(ctx, p.clock, func(ctx context.Context) error {
		var err error
		able, err = p.service.FaucetStatus(ctx, address, token)
		return err
	}); err != nil {
		em.Warn("Faucet status check failed: %v", err)
		return
	}

	if !able {
		em.Info("Faucet not available (already claimed?)")
		return
	}

	em.Info("Faucet available, claiming...")
	if err := p.retry.Soft.Do(ctx, p.clock, func(ctx context.Context) error {
		return p.service.ClaimFaucet(ctx, address, token)
	}); err != nil {
		em.Warn("Faucet claim failed: %v", err)
		return
	}
	em.Success("Faucet claimed successfully")
}
