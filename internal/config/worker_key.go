package config

type WorkerKeyStruct struct {
	PersistAnswersQueue   string
	PersistIntegrityQueue string
	ProgressFeedQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:   "persist_answers_queue",
	PersistIntegrityQueue: "persist_integrity_queue",
	ProgressFeedQueue:     "progress_feed_queue",
}
