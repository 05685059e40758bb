package api

import (
	"github.com/goalpath/planner-api/internal/app"
	"github.com/goalpath/planner-api/internal/auth"
	"github.com/goalpath/planner-api/internal/rpc"
)

// Services are the procedure implementations mounted on the RPC router.
type Services struct {
	Auth    *app.AuthService
	Profile *app.ProfileService
	Planner *app.PlannerService
	Banking *app.BankingService
}

// RegisterProcedures mounts every procedure. Anything touching user data sits
// behind the resolver and a permission check.
func RegisterProcedures(r *rpc.Router, s Services, resolver *auth.Resolver) {
	protected := auth.Protected(resolver)
	require := auth.RequirePermission

	r.Mutation("auth.signIn", rpc.Typed(s.Auth.SignIn))
	r.Mutation("auth.signUp", rpc.Typed(s.Auth.SignUp))
	r.Mutation("auth.confirmSignUp", rpc.Typed(s.Auth.ConfirmSignUp))
	r.Mutation("auth.resendConfirmationCode", rpc.Typed(s.Auth.ResendConfirmationCode))
	r.Mutation("auth.forgotPassword", rpc.Typed(s.Auth.ForgotPassword))
	r.Mutation("auth.confirmForgotPassword", rpc.Typed(s.Auth.ConfirmForgotPassword))
	r.Mutation("auth.refreshToken", rpc.Typed(s.Auth.RefreshToken))
	r.Mutation("auth.signOut", rpc.Typed(s.Auth.SignOut))
	r.Query("auth.me", rpc.Typed(s.Auth.Me), protected)

	r.Query("user.getProfile", rpc.Typed(s.Profile.GetProfile), protected)
	r.Mutation("user.updateProfile", rpc.Typed(s.Profile.UpdateProfile), protected, require(auth.PermProfileWrite))
	r.Mutation("user.updatePreferences", rpc.Typed(s.Profile.UpdatePreferences), protected, require(auth.PermProfileWrite))
	r.Mutation("user.getAvatarUploadUrl", rpc.Typed(s.Profile.GetAvatarUploadURL), protected, require(auth.PermProfileWrite))

	read := require(auth.PermPlansRead)
	write := require(auth.PermPlansWrite)
	r.Query("planner.getPlans", rpc.Typed(s.Planner.GetPlans), protected, read)
	r.Query("planner.getPlan", rpc.Typed(s.Planner.GetPlan), protected, read)
	r.Mutation("planner.createPlan", rpc.Typed(s.Planner.CreatePlan), protected, write)
	r.Mutation("planner.updatePlan", rpc.Typed(s.Planner.UpdatePlan), protected, write)
	r.Mutation("planner.deletePlan", rpc.Typed(s.Planner.DeletePlan), protected, write)
	r.Mutation("planner.updateProgress", rpc.Typed(s.Planner.UpdateProgress), protected, write)
	r.Query("planner.getProgressHistory", rpc.Typed(s.Planner.GetProgressHistory), protected, read)
	r.Mutation("planner.addMilestone", rpc.Typed(s.Planner.AddMilestone), protected, write)
	r.Mutation("planner.updateMilestone", rpc.Typed(s.Planner.UpdateMilestone), protected, write)
	r.Mutation("planner.removeMilestone", rpc.Typed(s.Planner.RemoveMilestone), protected, write)
	r.Mutation("planner.addExpense", rpc.Typed(s.Planner.AddExpense), protected, write)
	r.Mutation("planner.removeExpense", rpc.Typed(s.Planner.RemoveExpense), protected, write)
	r.Query("planner.getPlanSummary", rpc.Typed(s.Planner.GetPlanSummary), protected, read)
	r.Mutation("planner.seedDemoData", rpc.Typed(s.Planner.SeedDemoData), protected, require(auth.PermPlansSeed))

	accountsRead := require(auth.PermAccountsRead)
	accountsWrite := require(auth.PermAccountsWrite)
	r.Mutation("plaid.createLinkToken", rpc.Typed(s.Banking.CreateLinkToken), protected, accountsWrite)
	r.Mutation("plaid.exchangePublicToken", rpc.Typed(s.Banking.ExchangePublicToken), protected, accountsWrite)
	r.Query("plaid.getAccounts", rpc.Typed(s.Banking.GetAccounts), protected, accountsRead)
	r.Mutation("plaid.refreshBalances", rpc.Typed(s.Banking.RefreshBalances), protected, accountsWrite)
	r.Mutation("plaid.updateAccount", rpc.Typed(s.Banking.UpdateAccount), protected, accountsWrite)
	r.Mutation("plaid.disconnectAccount", rpc.Typed(s.Banking.DisconnectAccount), protected, accountsWrite)
	r.Query("plaid.getTransactions", rpc.Typed(s.Banking.GetTransactions), protected, accountsRead)
}
