package tools

import (
	"context"
	"encoding/json"

	"call-assistant/internal/mcp"
)

type validateArgs struct {
	Token string `json:"token"`
}

type validateResult struct {
	IsValid     bool   `json:"isValid"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Message     string `json:"message"`
}

func (ts *toolset) validateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "validate",
		Description: "Check a bearer token and return the phone number it is bound to",
		InputSchema: mcp.Object([]string{"token"}, map[string]mcp.Property{
			"token": {Type: mcp.TypeString},
		}),
		Handler: ts.validate,
	}
}

// validate reports invalid tokens in its result rather than as an error.
func (ts *toolset) validate(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[validateArgs](raw)
	if err != nil {
		return nil, err
	}
	id, err := ts.Validator.Validate(ctx, args.Token)
	if err != nil {
		return validateResult{IsValid: false, Message: "Invalid or expired token"}, nil
	}
	return validateResult{
		IsValid:     true,
		PhoneNumber: id.PhoneNumber,
		UserID:      id.UserID,
		Message:     "Token is valid",
	}, nil
}
