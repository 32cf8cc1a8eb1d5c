package telegram

import (
	"sync"
	"time"
)

const (
	defaultScanTimeout = 150 * time.Second
	maxPixels          = 18_000_000
)

type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"
	Lang   string

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
}

var (
	batches  sync.Map // key -> *photoBatch
	chatLang sync.Map // chatID -> BCP-47 tag set with /lang
)
