package redisstore

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

// admitScript checks every slot and increments all of them only if none is
// blocked. Each key is a hash: c = count, r = reset (unix ms), l = last
// admission (unix ms). Reply: {blocked index (0 = none), then c, r, l per slot}.
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local n = #KEYS
local counts, resets, lasts, ttls = {}, {}, {}, {}
local blocked = 0
for i = 1, n do
  local base = 1 + (i - 1) * 3
  local limit = tonumber(ARGV[base + 1])
  local window = tonumber(ARGV[base + 2])
  local cooldown = tonumber(ARGV[base + 3])
  local h = redis.call('HMGET', KEYS[i], 'c', 'r', 'l')
  local count = tonumber(h[1]) or 0
  local reset = tonumber(h[2]) or 0
  local last = tonumber(h[3]) or 0
  if reset == 0 or now >= reset then
    count = 0
    reset = now + window
  end
  counts[i] = count
  resets[i] = reset
  lasts[i] = last
  ttls[i] = math.max(reset - now, cooldown)
  if blocked == 0 then
    if count >= limit or (cooldown > 0 and last > 0 and now < last + cooldown) then
      blocked = i
    end
  end
end
if blocked == 0 then
  for i = 1, n do
    counts[i] = counts[i] + 1
    lasts[i] = now
    redis.call('HSET', KEYS[i], 'c', counts[i], 'r', resets[i], 'l', now)
    redis.call('PEXPIRE', KEYS[i], ttls[i])
  end
end
local out = {blocked}
for i = 1, n do
  out[#out + 1] = counts[i]
  out[#out + 1] = resets[i]
  out[#out + 1] = lasts[i]
end
return out
`)

// WindowStore keeps fixed-window counters in Redis so every instance behind
// a load balancer shares one budget per client.
type WindowStore struct {
	client redis.Scripter
	prefix string
}

func NewWindowStore(client redis.Scripter, prefix string) *WindowStore {
	return &WindowStore{client: client, prefix: prefix}
}

func (s *WindowStore) Admit(ctx context.Context, now time.Time, slots ...moderation.Slot) (moderation.Admission, error) {
	keys := make([]string, len(slots))
	args := make([]any, 0, 1+3*len(slots))
	args = append(args, now.UnixMilli())
	for i, slot := range slots {
		keys[i] = s.prefix + slot.Key
		args = append(args, slot.Limit, slot.Window.Milliseconds(), slot.Cooldown.Milliseconds())
	}

	raw, err := admitScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return moderation.Admission{}, fmt.Errorf("redis admit: %w", err)
	}
	if len(raw) != 1+3*len(slots) {
		return moderation.Admission{}, fmt.Errorf("redis admit: unexpected reply length %d", len(raw))
	}

	adm := moderation.Admission{
		Allowed: raw[0] == 0,
		Blocked: int(raw[0]) - 1,
		Slots:   make([]moderation.SlotState, len(slots)),
	}
	for i, slot := range slots {
		base := 1 + 3*i
		st := moderation.SlotState{
			Count:   int(raw[base]),
			ResetAt: time.UnixMilli(raw[base+1]).UTC(),
		}
		if last := raw[base+2]; last > 0 && slot.Cooldown > 0 {
			st.ReadyAt = time.UnixMilli(last).UTC().Add(slot.Cooldown)
		}
		adm.Slots[i] = st
	}
	return adm, nil
}

// Options parses a redis:// URL, falling back to a bare host:port address.
func Options(url string) (*redis.Options, error) {
	if url == "" {
		return &redis.Options{Addr: "localhost:6379"}, nil
	}
	if opts, err := redis.ParseURL(url); err == nil {
		return opts, nil
	}
	if host, _, err := net.SplitHostPort(url); err == nil && host != "" {
		return &redis.Options{Addr: url}, nil
	}
	return nil, fmt.Errorf("invalid redis url %q", url)
}

var _ moderation.WindowStore = (*WindowStore)(nil)
