package chunking

import (
	"context"
	"strings"
	"testing"
)

func TestChunkEmptyText(t *testing.T) {
	c := NewSimpleChunker(100, 20)
	chunks, err := c.Chunk(context.Background(), "   \n\t ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunkShortTextReturnsWhole(t *testing.T) {
	c := NewSimpleChunker(100, 20)
	text := "a short message"
	chunks, err := c.Chunk(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected single whole chunk, got %v", chunks)
	}
}

func TestChunkLongTextProducesMultipleChunks(t *testing.T) {
	c := NewSimpleChunker(50, 10)
	paragraph := "The weather was fine today. Everyone talked about the upcoming trip. Plans were made for the weekend."
	text := strings.Repeat(paragraph+"\n\n", 5)

	chunks, err := c.Chunk(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Fatalf("chunk %d is whitespace-only", i)
		}
	}
}

func TestChunkRunesOverlap(t *testing.T) {
	c := NewSimpleChunker(10, 4)
	runes := []rune("abcdefghijklmnopqrstuvwxyz")
	chunks := c.chunkRunes(runes)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-4:])
		if !strings.HasPrefix(chunks[i], tail) {
			t.Fatalf("chunk %d does not overlap previous tail %q: %q", i, tail, chunks[i])
		}
	}
}

func TestChunkRunesMultibyteSafe(t *testing.T) {
	c := NewSimpleChunker(4, 1)
	chunks := c.chunkRunes([]rune("天气很好大家都开心"))
	for i, chunk := range chunks {
		if strings.ContainsRune(chunk, '�') {
			t.Fatalf("chunk %d contains replacement rune: %q", i, chunk)
		}
	}
}
