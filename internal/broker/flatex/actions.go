package flatex

import "context"

// Login opens a session for principal. The credential is sent as its digest.
func (c *Client) Login(ctx context.Context, principal string, credential Digest) (*LogonResponse, error) {
	var out LogonResponse
	err := c.post(ctx, ActionLogon, logonArgs{
		Principal:  principal,
		Credential: credentialArg{CredentialName: "PIN", Credential: credential},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Accounts lists the cash and depot accounts of the session's customer.
func (c *Client) Accounts(ctx context.Context, principal, sessionID string) (*PreparationResponse, error) {
	var out PreparationResponse
	err := c.post(ctx, ActionPreparation, preparationArgs{
		Session:        sessionArg{SessionID: sessionID},
		Identification: identificationArg{CustomerID: principal},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping keeps a session alive.
func (c *Client) Ping(ctx context.Context, sessionID string) error {
	var out Response
	return c.post(ctx, ActionPing, pingArgs{Session: sessionArg{SessionID: sessionID}}, &out)
}

// Balance fetches the balance of a cash account.
func (c *Client) Balance(ctx context.Context, principal, sessionID string, cash Account) (*BalanceResponse, error) {
	var out BalanceResponse
	err := c.post(ctx, ActionBalance, balanceArgs{
		Session:        sessionArg{SessionID: sessionID},
		Identification: identificationArg{CustomerID: principal},
		Account:        toAccountArg(cash),
		Synchron:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Portfolio fetches the positions held in a depot.
func (c *Client) Portfolio(ctx context.Context, principal, sessionID string, depot Account) (*PortfolioResponse, error) {
	var out PortfolioResponse
	err := c.post(ctx, ActionPortfolio, portfolioArgs{
		Session:        sessionArg{SessionID: sessionID},
		Identification: identificationArg{CustomerID: principal},
		Depot:          toAccountArg(depot),
		Synchron:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Orders lists the orders of a depot.
func (c *Client) Orders(ctx context.Context, principal, sessionID string, depot Account, archivedOnly, openOnly bool) (*OrderListResponse, error) {
	var out OrderListResponse
	err := c.post(ctx, ActionOrderList, orderListArgs{
		Session:            sessionArg{SessionID: sessionID},
		Identification:     identificationArg{CustomerID: principal},
		Depot:              toAccountArg(depot),
		ArchivedOrdersOnly: archivedOnly,
		OpenOrdersOnly:     openOnly,
		Synchron:           true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestAuthCode starts a second-factor challenge.
func (c *Client) RequestAuthCode(ctx context.Context, principal, sessionID, method string) (*SubmitCredentialResponse, error) {
	var out SubmitCredentialResponse
	err := c.post(ctx, ActionSubmitCredential, submitCredentialArgs{
		Session:           sessionArg{SessionID: sessionID},
		Identification:    identificationArg{CustomerID: principal, AuthenticationMethod: method},
		SessionCredential: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmAuthCode answers a challenge with the digest of the code the user typed.
func (c *Client) ConfirmAuthCode(ctx context.Context, principal, sessionID string, pin Digest, useCaseID, method string) (*ConfirmAuthUseCaseResponse, error) {
	var out ConfirmAuthUseCaseResponse
	err := c.post(ctx, ActionConfirmAuthUseCase, confirmAuthUseCaseArgs{
		Session: sessionArg{SessionID: sessionID},
		Identification: identificationArg{
			CustomerID:           principal,
			AuthenticationMethod: method,
			TransactionPin:       pin,
		},
		AuthUseCaseID: useCaseID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Search looks up papers by name, ISIN or SIN.
func (c *Client) Search(ctx context.Context, sessionID, query string) (*SearchPaperResponse, error) {
	var out SearchPaperResponse
	err := c.post(ctx, ActionSearchPaper, searchPaperArgs{
		Session: sessionArg{SessionID: sessionID},
		SearchObj: searchObjArg{
			SearchString:    query,
			SearchIndicator: []int{0},
			KindList:        searchKinds,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaceOrder places a day order for args.Quantity pieces.
func (c *Client) PlaceOrder(ctx context.Context, principal, sessionID string, pin Digest, depot, cash Account, args PlaceOrderArgs, method string) (*PlaceOrderResponse, error) {
	if args.Order.IsZero() {
		return nil, ErrUnsupportedOrder
	}
	var out PlaceOrderResponse
	err := c.post(ctx, ActionPlaceOrder, placeOrderArgs{
		Session:        sessionArg{SessionID: sessionID},
		Identification: mutatingIdentification(principal, pin, method),
		Order:          newOrderArg(depot, cash, args),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, principal, sessionID string, pin Digest, depot Account, orderID, method string) (*CancelOrderResponse, error) {
	var out CancelOrderResponse
	err := c.post(ctx, ActionCancelOrder, cancelOrderArgs{
		Session:        sessionArg{SessionID: sessionID},
		Identification: mutatingIdentification(principal, pin, method),
		Depot:          toAccountArg(depot),
		OrderID:        orderID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func mutatingIdentification(principal string, pin Digest, method string) identificationArg {
	return identificationArg{
		CustomerID:           principal,
		AuthenticationMethod: method,
		TransactionPin:       pin,
		SessionCredential:    true,
	}
}
