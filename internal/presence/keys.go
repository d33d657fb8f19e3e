package presence

import "fmt"

// One ZSet per document: member = participant id, score = the unix second
// the heartbeat expires. Expired members are cleaned up lazily on read.
const keyRoomFmt = "presence:doc:%s"

func roomKey(docID string) string { return fmt.Sprintf(keyRoomFmt, docID) }
