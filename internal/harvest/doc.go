// Package harvest drives a resumable, checkpointed fetch loop over an ordered
// list of work items. Each item is handed to a pluggable Extractor; successful
// rows are accumulated and flushed to a RowSink every BatchSize items, and
// expected per-item failures are written to an ErrorSink the moment they
// happen. Flush tags carry the absolute end index of the input consumed so far,
// which is the resume point for the next run.
package harvest
