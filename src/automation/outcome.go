package automation

import "fmt"

// Code names one terminal result of an automation run.
type Code string

const (
	CodeSuccess            Code = "success"
	CodeAIWorking          Code = "ai_working"
	CodeUnknownState       Code = "unknown_state"
	CodeNoEditor           Code = "no_editor"
	CodeWaitSendTimeout    Code = "wait_send_timeout"
	CodeNoSendButton       Code = "no_send_button"
	CodeSendButtonDisabled Code = "send_button_disabled"
	CodeSendFailed         Code = "send_failed"
	CodeMonitorTimeout     Code = "monitor_timeout"
	CodeError              Code = "error"
)

// Codes lists every outcome code in a stable order.
var Codes = []Code{
	CodeSuccess, CodeAIWorking, CodeUnknownState, CodeNoEditor, CodeWaitSendTimeout,
	CodeNoSendButton, CodeSendButtonDisabled, CodeSendFailed, CodeMonitorTimeout, CodeError,
}

// Outcome is the immutable result of one run. Message is only set for CodeError.
type Outcome struct {
	Code    Code
	Message string
}

// Result builds a non-error outcome.
func Result(c Code) Outcome { return Outcome{Code: c} }

// Failure wraps an unexpected error into an error outcome.
func Failure(err error) Outcome {
	if err == nil {
		return Outcome{Code: CodeError, Message: "unknown error"}
	}
	return Outcome{Code: CodeError, Message: err.Error()}
}

// OK reports whether the run completed.
func (o Outcome) OK() bool { return o.Code == CodeSuccess }

func (o Outcome) String() string {
	if o.Code == CodeError {
		return fmt.Sprintf("error: %s", o.Message)
	}
	return string(o.Code)
}

// Describe returns the user-facing explanation for the outcome.
func (o Outcome) Describe() string {
	switch o.Code {
	case CodeSuccess:
		return "Explanation finished"
	case CodeAIWorking:
		return "ChatGPT is still answering, try again when it is done"
	case CodeUnknownState:
		return "Could not recognise the ChatGPT page, is it loaded and logged in?"
	case CodeNoEditor:
		return "ChatGPT input box not found"
	case CodeWaitSendTimeout:
		return "Timed out waiting for the send button"
	case CodeNoSendButton:
		return "Send button not found"
	case CodeSendButtonDisabled:
		return "Send button is disabled"
	case CodeSendFailed:
		return "Message was not sent"
	case CodeMonitorTimeout:
		return "Timed out waiting for the answer to finish"
	case CodeError:
		return "Automation failed: " + o.Message
	default:
		return string(o.Code)
	}
}
