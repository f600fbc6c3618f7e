package cli

import (
	"context"
	"errors"
	"os"

	"github.com/plateful/plateful/internal/common"
)

func (a *App) Register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Choose a username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}

	if err := a.remote.Register(ctx, username, password); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			printlnFn("Username already taken")
		} else {
			printlnFn("Registration failed:", err.Error())
		}
		return err
	}

	printlnFn("Registered. You can now log in.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}

	token, err := a.remote.Login(ctx, username, password)
	if err != nil {
		printlnFn("Login failed:", err.Error())
		return err
	}

	a.token.set(token)
	a.userName = username
	printlnFn("Logged in as", username)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.token.set("")
	a.userName = ""
	printlnFn("Logged out")
	return nil
}
