/*
Package events implements the per-file-type event stream: local
read/write/truncate operations are pushed in, aggregated according to the
subscriptions currently registered for that event type, and emitted to the
provider once an emission rule (counter or size threshold, or a periodic
timer) is satisfied.

An EventStream owns three ordered multisets of thresholds (counters, sizes
and time intervals), an Aggregator that decides how same-file events combine, and a
periodic timer that re-fires the lowest registered time threshold.

# Aggregation

A NullAggregator keeps every pushed event distinct — used while at most one
subscription is registered. As soon as a second counter threshold is
registered the stream upgrades to a FileIdAggregator, which merges same-file
write events using the counter/size/fileSize/blocks merge rule. The stream
downgrades back to Null as soon as fewer than two counter-bearing
subscriptions remain registered.

# Emission

push() aggregates the incoming event, then checks isEmissionRuleSatisfied:
the aggregated counter across all tracked files has reached the lowest
registered counter threshold, or the aggregated size has reached the lowest
registered size threshold. If satisfied, every aggregated event is emitted
and the aggregator is reset. A background timer independently emits on the
lowest registered time threshold regardless of counter/size.
*/
package events
