package config

type WorkerKeyStruct struct {
	SendResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	SendResultsQueue: "send_results_queue",
}
