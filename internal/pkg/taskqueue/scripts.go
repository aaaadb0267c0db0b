package taskqueue

import "github.com/redis/go-redis/v9"

// KEYS: job, prio, wait, delayed
// ARGV: encoded job, wait score, ready-at ms (0 = now), job id
var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[4], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("ZADD", KEYS[4], ARGV[3], ARGV[4])
else
  redis.call("ZADD", KEYS[3], ARGV[2], ARGV[4])
end
return 1
`)

// KEYS: wait, delayed, active, prio, locks
// ARGV: now ms, lock deadline ms, promote batch size, lock token
var claimScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1], "LIMIT", "0", ARGV[3])
for _, id in ipairs(due) do
  local score = redis.call("HGET", KEYS[4], id) or "0"
  redis.call("ZREM", KEYS[2], id)
  redis.call("ZADD", KEYS[1], score, id)
end
local head = redis.call("ZRANGE", KEYS[1], 0, 0)
if #head == 0 then
  return false
end
local id = head[1]
redis.call("ZREM", KEYS[1], id)
redis.call("ZADD", KEYS[3], ARGV[2], id)
redis.call("HSET", KEYS[5], id, ARGV[4])
return id
`)

// trimLua evicts everything past the newest keep ids of list and deletes their records.
// A negative keep keeps the whole list.
const trimLua = `
local function trim(list, keep, prefix)
  if keep < 0 then
    return 0
  end
  local evicted = redis.call("LRANGE", list, keep, -1)
  for _, id in ipairs(evicted) do
    redis.call("DEL", prefix .. id)
  end
  if keep == 0 then
    redis.call("DEL", list)
  elseif #evicted > 0 then
    redis.call("LTRIM", list, 0, keep - 1)
  end
  return #evicted
end
`

// KEYS: list
// ARGV: keep, job key prefix
var trimScript = redis.NewScript(trimLua + `
return trim(KEYS[1], tonumber(ARGV[1]), ARGV[2])
`)

// finishScript settles a claimed job, but only for the holder of its lease.
// Mode "history" pushes the id onto a finished list (KEYS[5]) and trims it to ARGV[5];
// mode "requeue" puts the id back into a sorted set (KEYS[5]) with score ARGV[5].
// Returns 0 when the lease belongs to someone else.
//
// KEYS: active, locks, prio, job, target
// ARGV: id, token, encoded job, mode, keep or score, job key prefix
var finishScript = redis.NewScript(trimLua + `
if redis.call("HGET", KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("SET", KEYS[4], ARGV[3])
if ARGV[4] == "history" then
  redis.call("HDEL", KEYS[3], ARGV[1])
  redis.call("LPUSH", KEYS[5], ARGV[1])
  trim(KEYS[5], tonumber(ARGV[5]), ARGV[6])
else
  redis.call("ZADD", KEYS[5], ARGV[5], ARGV[1])
end
return 1
`)

// KEYS: active, locks
// ARGV: id, token, new deadline ms
var extendScript = redis.NewScript(`
if redis.call("HGET", KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
return redis.call("ZADD", KEYS[1], "XX", "CH", ARGV[3], ARGV[1]) + 1
`)
