// Command simctd impersonates an SBE 49 on a serial port and checks the
// averaged lines the logger sends back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/goctd/pkg/uart"
)

func main() {
	var (
		baudFlag     = flag.Int("b", 9600, "Baud rate")
		rateFlag     = flag.Int("r", 16, "Samples per second, also the averaging window")
		salFlag      = flag.Bool("sal", false, "Include salinity")
		svFlag       = flag.Bool("sv", false, "Include sound velocity")
		trialsFlag   = flag.Int("n", 0, "Number of trials (0 = until interrupted)")
		progressFlag = flag.Int("every", 10, "Report accuracy every this many trials")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] device\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 || *rateFlag < 1 || *progressFlag < 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	device := flag.Arg(0)
	port, err := uart.Open(device, *baudFlag)
	if err != nil {
		logger.Fatal("Error opening serial port", zap.Error(err), zap.String("portName", device))
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := &trial{
		port:     port,
		rate:     *rateFlag,
		salinity: *salFlag,
		velocity: *svFlag,
		interval: time.Second / time.Duration(*rateFlag),
		timeout:  time.Second,
	}

	var successes, errors int
	for n := 0; *trialsFlag == 0 || n < *trialsFlag; n++ {
		if ctx.Err() != nil {
			break
		}

		reply, ok, err := t.run()
		if err != nil {
			logger.Fatal("Trial failed", zap.Error(err), zap.String("portName", device))
		}
		if ok {
			successes++
		} else {
			errors++
			logger.Debug("Unexpected reply", zap.ByteString("reply", reply))
		}

		total := successes + errors
		if total%*progressFlag == 0 {
			logger.Info(fmt.Sprintf("%d errors in %d trials", errors, total),
				zap.Float64("accuracy", 100*float64(successes)/float64(total)))
		}
	}
}
