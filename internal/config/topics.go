package config

const (
	// TopicExtractionProcess is the NSQ topic carrying extraction jobs.
	TopicExtractionProcess = "extraction.process"

	// ChannelWorker is the channel extraction workers consume from.
	ChannelWorker = "worker"

	// HandlerExtractionWorker identifies the extraction worker in the failed job store.
	HandlerExtractionWorker = "extraction-worker"
)
