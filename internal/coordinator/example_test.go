package coordinator_test

import (
	"context"
	"fmt"

	"pharosbot/internal/account"
	"pharosbot/internal/coordinator"
	"pharosbot/internal/runstate"
)

func ExampleRunner() {
	store := account.StaticStore{
		account.New("main", "0x1111111111111111111111111111111111111111", nil),
	}
	runner := coordinator.NewRunner(coordinator.Options{
		State: runstate.New(),
		Store: store,
		Pipeline: coordinator.PipelineFunc(func(ctx context.Context, acct account.Account, invite string) runstate.TaskResult {
			return runstate.TaskResult{Success: true, Message: "checked in with " + invite}
		}),
	})

	if err := runner.Start(context.Background(), "INVITE"); err != nil {
		fmt.Println(err)
		return
	}
	runner.Wait()

	snap := runner.Status()
	fmt.Println(snap.IsRunning, snap.Results["0x1111111111111111111111111111111111111111"].Message)
	// Output: false checked in with INVITE
}
