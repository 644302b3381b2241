// Package lib provides a Go SDK for running instrumented steps and pipelines
// programmatically.
//
// This package allows applications to wrap external commands under timing and
// resource instrumentation without shelling out to the pipemeter CLI binary.
// It is useful for embedding resource accounting into other pipeline tooling.
//
// # Quick Start
//
// Create a client, run a step, and summarize the ledger:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Run one instrumented step.
//	record, err := client.RunStep(ctx, lib.StepSpec{
//	    Name:    "denoise",
//	    Command: []string{"qiime", "dada2", "denoise-paired", "..."},
//	})
//
//	// Summarize everything recorded so far.
//	summary, err := client.Summarize(ctx)
//
// # Pipelines
//
// Whole pipelines run as ordered stages whose steps fan out concurrently:
//
//	result, err := client.RunPipeline(ctx, lib.Pipeline{
//	    Name:           "microbiome-run",
//	    MaxParallelism: 3,
//	    Stages: []lib.Stage{
//	        {Name: "import", Steps: []lib.StepSpec{{Name: "import-reads", Command: []string{"qiime", "tools", "import", "..."}}}},
//	        {Name: "denoise", Steps: []lib.StepSpec{
//	            {Name: "denoise-gut", Command: []string{"qiime", "dada2", "denoise-paired", "..."}},
//	            {Name: "denoise-oral", Command: []string{"qiime", "dada2", "denoise-paired", "..."}},
//	        }},
//	    },
//	})
//
// A step that exits non-zero without AllowFailure stops the pipeline and
// surfaces as [StepFailedError]; the records collected so far stay available
// in the result and in the ledger.
//
// # Measurement caveats
//
// Peak memory is sampled periodically, so it is a lower bound: spikes shorter
// than the sampling interval are missed. I/O deltas come from system-wide
// block device counters, so concurrent steps pollute each other's numbers.
package lib
