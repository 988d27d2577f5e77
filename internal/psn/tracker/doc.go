// Package tracker holds per-tracker PSN state and the field-level merge that
// folds partial packets into it.
//
// PSN senders may omit sub-chunks that did not change, so every field of a
// Record is an Optional. Merge only overwrites fields the incoming Update
// carries; everything else is left as it was.
package tracker
