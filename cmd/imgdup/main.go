package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newEnv(ctx)

	// 第一次 SIGINT/SIGTERM 取消进行中的分析或移动，它们在下一个检查点退出并释放锁；
	// 第二次直接退出。
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		n := env.tasks.CancelAll()
		cancel()
		fmt.Fprintf(env.stderr, "收到中断信号，正在取消（分析任务 %d 个）……再次中断立即退出\n", n)
		<-sigCh
		os.Exit(130)
	}()

	cmd := newRootCommand(env)
	if err := cmd.Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// exitCodeError 表示错误已经输出过，只需要以指定退出码结束。
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string { return fmt.Sprintf("exit %d", e.code) }
