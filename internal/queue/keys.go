package queue

// Key layout in the backing store, all under the cq/ prefix:
//
//	cq/partitions                    - set of known partition keys
//	cq/queue/{partition}             - append log (pending messages)
//	cq/processing/{partition}/{id}   - ProcessingEntry, TTL = lease timeout
//	cq/processing_ids/{partition}    - set of in-flight message ids
//	cq/lease/{partition}/{id}        - standalone lease record, TTL = lease timeout
//	cq/dlq/{partition}/{id}          - DeadLetterEntry, TTL = retention
//	cq/dlq_ids/{partition}           - set of dead-lettered message ids

const keyPartitions = "cq/partitions"

func logKey(partition string) string { return "cq/queue/" + partition }

func processingKey(partition, messageID string) string {
	return "cq/processing/" + partition + "/" + messageID
}

func processingSetKey(partition string) string { return "cq/processing_ids/" + partition }

func leaseKey(partition, messageID string) string {
	return "cq/lease/" + partition + "/" + messageID
}

func deadLetterKey(partition, messageID string) string {
	return "cq/dlq/" + partition + "/" + messageID
}

func deadLetterSetKey(partition string) string { return "cq/dlq_ids/" + partition }
