// Package worker runs conversions of many FHIR JSON documents in parallel.
//
// Every job gets its own Outcome, so issues from concurrent merges never mix.
//
//	pool := worker.NewPool(conv, 4)
//	for i, doc := range docs {
//	    pool.Submit(worker.Job{ID: strconv.Itoa(i), Input: doc, ResourceType: "Patient"})
//	}
//	batch := pool.CloseAndWait()
//
// Results can be read while jobs are still being submitted. Results nobody
// read are returned by CloseAndWait.
//
// Batch runs a fixed slice of jobs and returns the results in input order.
package worker
