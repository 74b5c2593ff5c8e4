package poller

import "inviqa/notification-relay/config"

func testConfig() *config.Config {
	return &config.Config{
		WorkerConcurrency: 2,
		PollFrequencyMs:   10,
		SweepFrequencyMs:  20,
	}
}
