package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/poller"
)

// Producer feeds messages into a running program until ctx is cancelled
type Producer func(ctx context.Context, send func(tea.Msg))

// PollProducer follows a task with a poller built from gateway and cfg and
// reports every status, sub-task result and the outcome as messages
func PollProducer(gateway domain.Gateway, cfg poller.Config, id domain.TaskID, opts ...poller.Option) Producer {
	return func(ctx context.Context, send func(tea.Msg)) {
		all := append(append([]poller.Option(nil), opts...),
			poller.WithStatusHook(func(s *domain.TaskStatus) { send(StatusMsg{Status: s}) }),
			poller.WithSubTaskHook(func(r domain.SubTaskResult) { send(SubTaskMsg{Result: r}) }),
		)

		outcome, err := poller.New(gateway, cfg, all...).Poll(ctx, id)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			send(ErrMsg{Err: err})
			return
		}
		send(DoneMsg{Outcome: outcome})
	}
}

// Run shows m until the user quits. The producer runs alongside the program
// and is cancelled and awaited before Run returns.
func Run(ctx context.Context, m Model, produce Producer, opts ...tea.ProgramOption) (Model, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		produce(ctx, program.Send)
	}()

	final, err := program.Run()
	cancel()
	wg.Wait()

	if fm, ok := final.(Model); ok {
		m = fm
	}
	return m, err
}
