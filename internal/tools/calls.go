package tools

import (
	"context"
	"encoding/json"
	"time"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
	"call-assistant/internal/mcp"
	"call-assistant/internal/telephony"
)

const (
	defaultVoice     = "alice"
	defaultLanguage  = "en-US"
	defaultListLimit = 20
)

type callArgs struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

type callResult struct {
	CallID  string           `json:"callId"`
	Status  calls.CallStatus `json:"status"`
	To      string           `json:"to"`
	From    string           `json:"from"`
	Message string           `json:"message"`
}

func (ts *toolset) callTool() mcp.Tool {
	return mcp.Tool{
		Name:        "call",
		Description: "Place an outbound phone call that speaks a message when answered",
		InputSchema: mcp.Object([]string{"to", "message"}, map[string]mcp.Property{
			"to":       {Type: mcp.TypeString, Description: "Destination number in E.164 format"},
			"message":  {Type: mcp.TypeString, Description: "Text spoken to the callee"},
			"voice":    {Type: mcp.TypeString, Description: "Text-to-speech voice", Default: defaultVoice},
			"language": {Type: mcp.TypeString, Description: "Speech language tag", Default: defaultLanguage},
		}),
		Handler: ts.placeCall,
	}
}

func (ts *toolset) placeCall(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[callArgs](raw)
	if err != nil {
		return nil, err
	}
	placed, err := ts.Provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:       args.To,
		Message:  args.Message,
		Voice:    args.Voice,
		Language: args.Language,
	})
	if err != nil {
		return nil, err
	}
	snap := calls.Call{ID: placed.ID, To: placed.To, From: placed.From, Status: placed.Status, UpdatedAt: time.Now().UTC()}
	ts.remember(ctx, snap)
	ts.Events.Emit(ctx, placed.ID, "placed", snap)
	return callResult{
		CallID:  placed.ID,
		Status:  placed.Status,
		To:      placed.To,
		From:    placed.From,
		Message: "Call initiated successfully",
	}, nil
}

type callIDArgs struct {
	CallID string `json:"callId"`
}

type callStatusResult struct {
	CallID    string           `json:"callId"`
	Status    calls.CallStatus `json:"status"`
	Duration  *int             `json:"duration"`
	StartTime *time.Time       `json:"startTime"`
	EndTime   *time.Time       `json:"endTime"`
	Price     *string          `json:"price"`
}

func (ts *toolset) callStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "call-status",
		Description: "Get the current status of a call",
		InputSchema: mcp.Object([]string{"callId"}, map[string]mcp.Property{
			"callId": {Type: mcp.TypeString, Description: "Provider call identifier"},
		}),
		Handler: ts.callStatus,
	}
}

func (ts *toolset) callStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[callIDArgs](raw)
	if err != nil {
		return nil, err
	}
	c, err := ts.Provider.GetCallStatus(ctx, args.CallID)
	if err != nil {
		return nil, err
	}
	c = c.Observed()
	ts.remember(ctx, c)
	return callStatusResult{
		CallID:    c.ID,
		Status:    c.Status,
		Duration:  c.Duration,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		Price:     c.Price,
	}, nil
}

type listCallsArgs struct {
	Limit  int    `json:"limit"`
	Status string `json:"status"`
}

type listedCall struct {
	CallID    string           `json:"callId"`
	To        string           `json:"to"`
	From      string           `json:"from"`
	Status    calls.CallStatus `json:"status"`
	StartTime *time.Time       `json:"startTime"`
	Duration  *int             `json:"duration"`
	Price     *string          `json:"price"`
}

type listCallsResult struct {
	Calls []listedCall `json:"calls"`
}

func (ts *toolset) listCallsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list-calls",
		Description: "List recent calls, most recent first",
		InputSchema: mcp.Object(nil, map[string]mcp.Property{
			"limit":  {Type: mcp.TypeInteger, Description: "Maximum number of calls", Default: defaultListLimit, Minimum: mcp.Float(1), Maximum: mcp.Float(1000)},
			"status": {Type: mcp.TypeString, Description: "Only calls in this status"},
		}),
		Handler: ts.listCalls,
	}
}

func (ts *toolset) listCalls(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[listCallsArgs](raw)
	if err != nil {
		return nil, err
	}
	req := telephony.ListCallsRequest{Limit: args.Limit}
	if args.Status != "" {
		st, ok := calls.ParseCallStatus(args.Status)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidArguments, "Unknown call status: %s", args.Status)
		}
		req.Status = st
	}
	list, err := ts.Provider.ListCalls(ctx, req)
	if err != nil {
		return nil, err
	}
	out := listCallsResult{Calls: make([]listedCall, 0, len(list))}
	for _, c := range list {
		c = c.Observed()
		out.Calls = append(out.Calls, listedCall{
			CallID:    c.ID,
			To:        c.To,
			From:      c.From,
			Status:    c.Status,
			StartTime: c.StartTime,
			Duration:  c.Duration,
			Price:     c.Price,
		})
	}
	return out, nil
}

type cancelResult struct {
	CallID  string           `json:"callId"`
	Status  calls.CallStatus `json:"status"`
	Message string           `json:"message"`
}

func (ts *toolset) cancelCallTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel-call",
		Description: "Cancel a queued or ringing call, or hang up a call in progress",
		InputSchema: mcp.Object([]string{"callId"}, map[string]mcp.Property{
			"callId": {Type: mcp.TypeString, Description: "Provider call identifier"},
		}),
		Handler: ts.cancelCall,
	}
}

func (ts *toolset) cancelCall(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[callIDArgs](raw)
	if err != nil {
		return nil, err
	}
	c, err := ts.Provider.CancelCall(ctx, args.CallID)
	if err != nil {
		return nil, err
	}
	ts.remember(ctx, c)
	ts.Events.Emit(ctx, c.ID, "canceled", c)
	msg := "Call canceled"
	if c.Status == calls.CallStatusCompleted {
		msg = "Call ended"
	}
	return cancelResult{CallID: c.ID, Status: c.Status, Message: msg}, nil
}
