package cli

import (
	"fmt"
	"strconv"
	"strings"

	"parley/internal/usecase"
)

// ParseCommand turns a slash-command line into its typed signal. Payloads are
// validated here so the orchestrator only ever sees well-formed signals. The
// boolean result is false for input that is not a command at all.
func ParseCommand(line string) (usecase.Signal, bool, error) {
	if !strings.HasPrefix(line, "/") {
		return nil, false, nil
	}

	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "/")
	// Everything after the command word, whitespace preserved, for payloads
	// like titles that may contain spaces.
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch name {
	case "exit", "quit", "q":
		return usecase.ExitSignal{}, true, nil

	case "new":
		return usecase.NewChatSignal{}, true, nil
	case "open":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /open <chat-id or prefix>")
		}
		return usecase.OpenChatSignal{Ref: rest}, true, nil
	case "close":
		return usecase.CloseChatSignal{}, true, nil
	case "rename":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /rename <title>")
		}
		return usecase.RenameChatSignal{Title: rest}, true, nil
	case "delete":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /delete <chat-id or prefix>")
		}
		return usecase.DeleteChatSignal{Ref: rest}, true, nil
	case "list", "ls":
		return usecase.ListChatsSignal{}, true, nil
	case "show":
		return usecase.ShowChatSignal{}, true, nil

	case "retry":
		return usecase.EnterRetrySignal{}, true, nil
	case "apply":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /apply <attempt-number>")
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return nil, true, fmt.Errorf("apply: %q is not a valid attempt number", rest)
		}
		return usecase.ApplyRetrySignal{Selection: n}, true, nil
	case "cancel":
		return usecase.CancelRetrySignal{}, true, nil

	case "secret":
		return usecase.EnterSecretSignal{}, true, nil
	case "endsecret":
		return usecase.ExitSecretSignal{}, true, nil

	case "search":
		return usecase.ToggleSearchSignal{}, true, nil
	case "reasoning":
		return usecase.ToggleReasoningSignal{}, true, nil

	case "model":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /model [provider/]<model>")
		}
		provider, model := splitModelRef(rest)
		return usecase.SwitchModelSignal{Provider: provider, Model: model}, true, nil

	case "purge":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /purge <message-id>")
		}
		return usecase.PurgeSignal{HexID: strings.ToLower(rest)}, true, nil
	case "rewind":
		if rest == "" {
			return nil, true, fmt.Errorf("usage: /rewind <message-id>")
		}
		return usecase.RewindSignal{HexID: strings.ToLower(rest)}, true, nil

	case "accept":
		return usecase.AcceptErrorSignal{}, true, nil
	case "status":
		return usecase.StatusSignal{}, true, nil
	case "title":
		return usecase.TitleSignal{}, true, nil
	case "summary":
		return usecase.SummarizeSignal{}, true, nil
	case "system":
		// An empty payload clears the prompt.
		return usecase.SystemPromptSignal{Ref: rest}, true, nil

	default:
		return nil, true, fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

// splitModelRef splits "provider/model" on the FIRST slash; a bare model name
// keeps the current provider. Model ids containing slashes (OpenRouter) need
// the explicit provider prefix.
func splitModelRef(ref string) (provider, model string) {
	if i := strings.Index(ref, "/"); i > 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

const helpText = `Commands:
  /new                      start a new chat
  /open <id>                open a chat by id or unique prefix
  /close                    close the current chat
  /list                     list saved chats
  /show                     list the open chat's messages with their ids
  /rename <title>           set the chat title
  /delete <id>              delete a saved chat
  /retry                    enter retry mode on the last interaction
  /apply <n>                apply retry attempt n
  /cancel                   leave retry mode, discarding attempts
  /secret                   enter secret (unsaved) mode
  /endsecret                leave secret mode
  /accept                   accept a pending error
  /purge <msg-id>           remove one message
  /rewind <msg-id>          remove a message and everything after it
  /model [provider/]<name>  switch the active model
  /search                   toggle provider web search
  /reasoning                toggle extended reasoning
  /system <prompt>          set the chat system prompt (empty clears)
  /title                    regenerate the chat title
  /summary                  regenerate the chat summary
  /status                   show session status
  /exit                     quit`
