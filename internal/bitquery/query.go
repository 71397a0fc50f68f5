package bitquery

// tradesQuery selects individual trades of a token against one quote
// currency. PriceAsymmetry filters out trades priced far from the pool.
const tradesQuery = `
query Trades($token: String!, $quote: String!, $limit: Int!, $since: DateTime, $till: DateTime) {
  Solana(dataset: archive) {
    DEXTradeByTokens(
      orderBy: {descending: Block_Time}
      limit: {count: $limit}
      where: {
        Block: {Time: {since: $since, till: $till}}
        Trade: {
          Currency: {MintAddress: {is: $token}}
          Side: {Currency: {MintAddress: {is: $quote}}}
          PriceAsymmetry: {lt: 0.1}
        }
      }
    ) {
      Block {
        Time
      }
      Trade {
        Price
        Amount
      }
    }
  }
}
`
