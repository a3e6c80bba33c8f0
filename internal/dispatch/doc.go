// Package dispatch turns classified content into delivered replies.
//
// Submit records one pending reply per source item. Drain passes pick up
// the records that are due, group them by account and work the accounts in
// parallel, sending each account's records one at a time under its rate
// limit and session lock. Failed sends back off and retry until the attempt
// budget runs out.
package dispatch
